package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/KingofLakemoor/chainlink/internal/kafka"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var leagues = []string{"NFL", "NBA", "MLB", "NHL", "NCAAF", "NCAAB", "MLS", "EPL"}

// member is one squad_id:user_id pair to resolve picks for
type member struct {
	squadID string
	userID  string
}

func parseMembers(s string) ([]member, error) {
	var out []member
	for _, pair := range strings.Split(s, ",") {
		squadID, userID, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || squadID == "" || userID == "" {
			return nil, fmt.Errorf("invalid member %q, want squad_id:user_id", pair)
		}
		out = append(out, member{squadID: squadID, userID: userID})
	}
	return out, nil
}

func randomOutcome(m member) domain.OutcomeEvent {
	status := domain.PickLoss
	switch n := rand.Intn(100); {
	case n < 48:
		status = domain.PickWin
	case n < 53:
		status = domain.PickPush
	}

	coins := decimal.Zero
	if status == domain.PickWin {
		coins = decimal.New(int64(rand.Intn(2000)+100), -2)
	}

	return domain.OutcomeEvent{
		SquadID:    m.squadID,
		UserID:     m.userID,
		PickID:     uuid.NewString(),
		Status:     status,
		Coins:      coins,
		League:     leagues[rand.Intn(len(leagues))],
		ResolvedAt: time.Now().UTC(),
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "pick-outcomes", "Kafka topic")
	membersFlag := flag.String("members", "", "Members to resolve picks for, as squad_id:user_id pairs (comma-separated)")
	rate := flag.Int("rate", 50, "Outcomes per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	members, err := parseMembers(*membersFlag)
	if err != nil {
		log.Fatal(err)
	}
	if *rate <= 0 {
		log.Fatal("rate must be positive")
	}

	fmt.Printf("Producing pick outcomes to %s on %s for %d members at %d/sec\n", *topic, *brokers, len(members), *rate)

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func() {
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	var produced int64
	for {
		select {
		case <-sigChan:
			shutdown()
			return
		case <-deadline:
			shutdown()
			return
		case <-ticker.C:
			event := randomOutcome(members[rand.Intn(len(members))])
			data, err := kafka.EncodeOutcome(event)
			if err != nil {
				log.Printf("Failed to encode outcome: %v", err)
				continue
			}
			// Keyed by squad so one squad's outcomes stay on one partition
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(event.SquadID),
				Value: sarama.ByteEncoder(data),
			}
			produced++
		case <-statsTicker.C:
			fmt.Printf("[%s] Produced: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				produced,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
