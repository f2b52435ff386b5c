package metrics

import "github.com/prometheus/client_golang/prometheus"

// Counters for the token lifecycle and email delivery. Redemption outcomes
// are labeled success, invalid, expired, replayed, or error.
var (
	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_tokens_issued_total",
		Help: "Attendance tokens minted.",
	})
	Redemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_redemptions_total",
		Help: "Token redemption attempts by outcome.",
	}, []string{"outcome"})
	Emails = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_emails_total",
		Help: "Email deliveries by status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(TokensIssued, Redemptions, Emails)
}
