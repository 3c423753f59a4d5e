// Command testserver runs a fake promo API for local runs of promokeys.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	-port            Port to listen on (default: 8080)
//	-host            Host to bind to (default: localhost)
//	-grant-after     Register calls per session before a code is granted (default: 3)
//	-rate-limit      Answer every Nth register call with tooManyRegister (default: 0, off)
//	-session-uses    Expire a client token after N register calls (default: 0, off)
//	-withhold        Answer every Nth create-code call with a null code (default: 0, off)
//	-latency         Delay every response (default: 0)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promokeys/testserver"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	grantAfter := flag.Int("grant-after", 3, "register calls per session before a code is granted")
	rateLimit := flag.Int("rate-limit", 0, "answer every Nth register call with tooManyRegister")
	sessionUses := flag.Int("session-uses", 0, "expire a client token after N register calls")
	withhold := flag.Int("withhold", 0, "answer every Nth create-code call with a null code")
	latency := flag.Duration("latency", 0, "delay every response")
	flag.Parse()

	server := testserver.NewServer(testserver.Options{
		GrantAfter:     *grantAfter,
		RateLimitEvery: *rateLimit,
		SessionUses:    *sessionUses,
		WithholdEvery:  *withhold,
		Latency:        *latency,
	})
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("Promo API Test Server")
	fmt.Println("=====================")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health              - Health check")
	fmt.Println("  POST /promo/login-client  - Exchange an app token for a client token")
	fmt.Println("  POST /promo/register-event - Register a play event")
	fmt.Println("  POST /promo/create-code   - Redeem a granted code")
	fmt.Println()

	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	stats := server.Stats()
	fmt.Printf("Served %d logins, %d registrations, %d codes\n", stats.Logins, stats.Registers, stats.CodesIssued)
}
