// nats-bridge relays task lifecycle traffic between a team's local broker
// and a central office broker, so several teamtwin instances can share one
// observability plane.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects originated by the team core (only forward local -> office)
var localSubjects = []string{
	"task.created",
	"task.assigned",
	"task.status",
	"agent.updated",
}

// Subjects originated centrally (only forward office -> local)
var officeSubjects = []string{
	"task.submit",
}

// Bidirectional subjects (need dedup)
var bidirectionalSubjects = []string{
	"system.broadcast",
}

// RecentMessages tracks recently seen messages to prevent relay loops
type RecentMessages struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func NewRecentMessages(ttl time.Duration) *RecentMessages {
	rm := &RecentMessages{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
	go func() {
		for {
			time.Sleep(ttl)
			rm.cleanup()
		}
	}()
	return rm
}

func (rm *RecentMessages) hash(subject string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(subject))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (rm *RecentMessages) IsSeen(subject string, data []byte) bool {
	hash := rm.hash(subject, data)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, exists := rm.seen[hash]
	return exists
}

func (rm *RecentMessages) Mark(subject string, data []byte) {
	hash := rm.hash(subject, data)
	rm.mu.Lock()
	rm.seen[hash] = time.Now()
	rm.mu.Unlock()
}

func (rm *RecentMessages) cleanup() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	now := time.Now()
	for hash, ts := range rm.seen {
		if now.Sub(ts) > rm.ttl {
			delete(rm.seen, hash)
		}
	}
}

func forward(from, to *nats.Conn, subjects []string, tag string, recent *RecentMessages) int {
	count := 0
	for _, subject := range subjects {
		subj := subject
		_, err := from.Subscribe(subj, func(msg *nats.Msg) {
			if recent != nil {
				if recent.IsSeen(msg.Subject, msg.Data) {
					return
				}
				recent.Mark(msg.Subject, msg.Data)
			}
			log.Printf("[%s] %s (%d bytes)", tag, msg.Subject, len(msg.Data))
			to.Publish(msg.Subject, msg.Data)
		})
		if err != nil {
			log.Printf("[BRIDGE] Warning: Failed to subscribe to %s: %v", subj, err)
			continue
		}
		count++
	}
	return count
}

func main() {
	localURL := flag.String("local", "nats://localhost:4222", "Team core's NATS URL")
	officeURL := flag.String("office", "nats://localhost:4223", "Central office NATS URL")
	flag.Parse()

	log.Println("===============================================")
	log.Println("  NATS Bridge - Team <-> Office")
	log.Println("===============================================")
	log.Printf("Local NATS:  %s", *localURL)
	log.Printf("Office NATS: %s", *officeURL)

	localConn, err := nats.Connect(*localURL, nats.Name("bridge-to-local"))
	if err != nil {
		log.Fatalf("Failed to connect to local NATS: %v", err)
	}
	defer localConn.Close()
	log.Println("[BRIDGE] Connected to local NATS")

	officeConn, err := nats.Connect(*officeURL, nats.Name("bridge-to-office"))
	if err != nil {
		log.Fatalf("Failed to connect to office NATS: %v", err)
	}
	defer officeConn.Close()
	log.Println("[BRIDGE] Connected to office NATS")

	recent := NewRecentMessages(5 * time.Second)

	subCount := 0
	subCount += forward(localConn, officeConn, localSubjects, "TEAM->OFFICE", nil)
	subCount += forward(officeConn, localConn, officeSubjects, "OFFICE->TEAM", nil)
	subCount += forward(localConn, officeConn, bidirectionalSubjects, "TEAM->OFFICE", recent)
	subCount += forward(officeConn, localConn, bidirectionalSubjects, "OFFICE->TEAM", recent)

	log.Printf("[BRIDGE] Active subscriptions: %d", subCount)
	log.Println("[BRIDGE] Bridge running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[BRIDGE] Shutting down...")
}
