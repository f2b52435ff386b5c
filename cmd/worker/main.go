package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusaccess/internal/config"
	"campusaccess/internal/mailer"
	"campusaccess/internal/metrics"
	"campusaccess/internal/queue"
	"campusaccess/internal/store"
)

// Worker consumes queued email jobs and delivers them over SMTP, keeping
// slow mail servers out of the API request path.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs a shared queue backend; set QUEUE_BACKEND=redis")
	}
	q := queue.NewRedisQueue(redisClient.Client, "campus:emails")

	smtp := mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	if !smtp.Configured() {
		log.Println("WARNING: SMTP not configured; jobs will be dropped after logging")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for email jobs...")
	for msg := range messages {
		if msg.Type != "email" {
			continue
		}

		job, err := mailer.DecodeJob(msg.Body)
		if err != nil {
			log.Printf("bad email job: %v", err)
			metrics.Emails.WithLabelValues("invalid").Inc()
			continue
		}

		log.Printf("sending %q to %s", job.Subject, job.To)
		if err := smtp.Send(job.To, job.Subject, job.Body); err != nil {
			log.Printf("send to %s failed: %v", job.To, err)
			metrics.Emails.WithLabelValues("failed").Inc()
			continue
		}
		metrics.Emails.WithLabelValues("sent").Inc()

		time.Sleep(10 * time.Millisecond) // Small delay between sends
	}

	log.Println("worker stopped")
}
