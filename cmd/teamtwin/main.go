package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/TEAMTWIN/internal/agent"
	"github.com/TEAMTWIN/internal/api"
	"github.com/TEAMTWIN/internal/comms"
	"github.com/TEAMTWIN/internal/config"
	"github.com/TEAMTWIN/internal/events"
	"github.com/TEAMTWIN/internal/nats"
	"github.com/TEAMTWIN/internal/rg"
	"github.com/TEAMTWIN/internal/secrets"
	"github.com/TEAMTWIN/internal/skb"
	"github.com/TEAMTWIN/internal/task"
)

func main() {
	configPath := flag.String("config", "configs/teams.yaml", "Team roster file")
	dbPath := flag.String("db", "data/teamtwin.db", "Knowledge base database file")
	eventsDBPath := flag.String("events-db", "data/events.db", "Event log database file")
	keysPath := flag.String("keys", "data/keys.json", "Credential store file (keep out of source control)")
	natsURL := flag.String("nats", "", "External NATS URL (empty = embedded server)")
	natsPort := flag.Int("nats-port", 4222, "Port for the embedded NATS server")
	noNATS := flag.Bool("no-nats", false, "Disable the NATS lifecycle bridge")
	flag.Parse()

	cfg := config.FromEnv()

	team, err := config.LoadTeamConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load roster: %v\n", err)
		os.Exit(1)
	}
	mgrCfg := team.Manager()
	if mgrCfg == nil {
		fmt.Fprintf(os.Stderr, "Roster %s declares no manager\n", *configPath)
		os.Exit(1)
	}
	workerCfgs := team.Workers()
	if len(workerCfgs) == 0 {
		fmt.Fprintf(os.Stderr, "Roster %s declares no workers\n", *configPath)
		os.Exit(1)
	}

	keys, err := secrets.NewStore(*keysPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open credential store: %v\n", err)
		os.Exit(1)
	}

	// Durable layers are optional: the core runs in-memory on failure.
	var store *skb.DurableStore
	if s, err := skb.OpenDurableStore(*dbPath); err != nil {
		log.Printf("[Main] knowledge base persistence unavailable, running in-memory: %v", err)
	} else {
		store = s
		defer s.Close()
	}
	kb := skb.New(store)

	var eventStore events.EventStore
	if s, err := events.OpenSQLiteStore(*eventsDBPath); err != nil {
		log.Printf("[Main] event persistence unavailable, events are in-memory only: %v", err)
	} else {
		eventStore = s
		defer s.Close()
	}
	eventBus := events.NewBus(eventStore)
	bus := comms.NewBus(kb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Roster registration and agent startup.
	registerAgent(kb, *mgrCfg, skb.RoleManager)
	mgr := agent.NewManager(mgrCfg.ID, mgrCfg.PersonName, kb, bus,
		rg.Resolve(mgrCfg.ID, mgrCfg.Generator, keys, cfg), cfg, eventBus)
	go mgr.Run(ctx)

	core := api.New(kb, mgr, eventBus, keys, cfg)
	for _, wc := range workerCfgs {
		registerAgent(kb, wc, skb.RoleWorker)
		w := agent.NewWorker(wc.ID, wc.PersonName, kb, bus,
			rg.Resolve(wc.ID, wc.Generator, keys, cfg))
		core.AttachWorker(w)
		go w.Run(ctx)
	}
	log.Printf("[Main] roster up: manager %s, %d workers", mgrCfg.ID, len(workerCfgs))

	if !*noNATS {
		if err := startNATS(ctx, core, eventBus, *natsURL, *natsPort); err != nil {
			log.Printf("[Main] NATS bridge disabled: %v", err)
		}
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown
	log.Println("[Main] shutting down")
	cancel()
}

func registerAgent(kb *skb.SKB, ac config.AgentConfig, role skb.Role) {
	err := kb.RegisterAgent(
		skb.AgentInfo{ID: ac.ID, PersonName: ac.PersonName, Role: role},
		skb.Capabilities{
			TechnicalSkills:    ac.TechnicalSkills,
			PreferredTaskTypes: ac.PreferredTaskTypes,
			CommunicationStyle: ac.CommunicationStyle,
			DecisionStyle:      ac.DecisionStyle,
		},
	)
	if err != nil {
		log.Printf("[Main] agent %s already registered: %v", ac.ID, err)
	}
}

// startNATS connects (or embeds) a broker, relays lifecycle events onto it,
// and serves inbound task submissions
func startNATS(ctx context.Context, core *api.API, eventBus *events.Bus, url string, port int) error {
	if url == "" {
		srv := nats.NewEmbeddedServer(nats.EmbeddedServerConfig{Port: port})
		if err := srv.Start(); err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			srv.Shutdown()
		}()
		url = srv.URL()
		log.Printf("[Main] embedded NATS server on %s", url)
	}

	client, err := nats.NewClient(url)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		client.Close()
	}()

	go nats.NewBridge(client, eventBus).Run(ctx)

	// Inbound: create and immediately distribute submitted tasks.
	_, err = client.Subscribe(nats.SubjectTaskSubmit, func(m *nats.Message) {
		var in task.Input
		if err := json.Unmarshal(m.Data, &in); err != nil {
			log.Printf("[Main] malformed submission on %s: %v", m.Subject, err)
			return
		}
		t, err := core.CreateTask(in)
		if err != nil {
			log.Printf("[Main] submission rejected: %v", err)
			return
		}
		go func() {
			if _, err := core.DistributeTask(ctx, t.ID); err != nil {
				log.Printf("[Main] distribution of %s failed: %v", t.ID, err)
			}
		}()
	})
	return err
}
