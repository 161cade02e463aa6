// Command authgate-demo starts a local admin-auth server on :8080 backed
// by miniredis, so no external Redis is required.
//
// Endpoints:
//
//	POST /auth/login    JSON {"email":"...", "password":"..."}
//	POST /auth/refresh  rotates tokens via the rt cookie
//	POST /auth/logout   revokes the token family behind the rt cookie
//	GET  /admin/ping    middleware-guarded route
//	GET  /metrics       Prometheus exposition
//
// Run:
//
//	go run ./cmd/authgate-demo
//
// Then:
//
//	# login (stores rt cookie in cookie jar)
//	curl -i -c jar.txt -X POST localhost:8080/auth/login \
//	  -H 'Content-Type: application/json' \
//	  -d '{"email":"admin@example.com","password":"correct-horse"}'
//
//	# call a guarded route
//	curl -i localhost:8080/admin/ping -H "Authorization: Bearer <ACCESS_TOKEN>"
//
//	# rotate (uses cookie jar)
//	curl -i -b jar.txt -c jar.txt -X POST localhost:8080/auth/refresh
//
//	# logout (revokes the family, clears the cookie)
//	curl -i -b jar.txt -c jar.txt -X POST localhost:8080/auth/logout
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/arfenn/authgate"
	"github.com/arfenn/authgate/httpapi"
	"github.com/arfenn/authgate/metrics/export/prometheus"
	"github.com/arfenn/authgate/middleware"
	"github.com/arfenn/authgate/password"
)

const (
	demoEmail    = "admin@example.com"
	demoPassword = "correct-horse"
)

func main() {
	mr, err := miniredis.Run()
	if err != nil {
		log.Fatal(err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatal("keygen:", err)
	}

	engine, err := buildEngine(rdb, pub, priv)
	if err != nil {
		log.Fatal("engine build:", err)
	}
	defer engine.Close()

	mux := http.NewServeMux()

	api := httpapi.NewHandler(engine, httpapi.Config{
		// Plain HTTP on localhost; never disable Secure in production.
		SecureCookies: false,
		SameSite:      http.SameSiteStrictMode,
	})
	api.Mount(mux)

	guarded := middleware.Guard(engine)(
		middleware.RequireRole(authgate.RoleAdmin)(
			http.HandlerFunc(pingHandler),
		),
	)
	mux.Handle("GET /admin/ping", guarded)

	exporter := prometheus.NewPrometheusExporter(engine)
	mux.Handle("GET /metrics", exporter.Handler())

	fmt.Println("listening on :8080")
	fmt.Printf("seeded admin: %s / %s\n", demoEmail, demoPassword)
	log.Fatal(http.ListenAndServe(":8080", mux))
}

func buildEngine(rdb redis.UniversalClient, pub ed25519.PublicKey, priv ed25519.PrivateKey) (*authgate.Engine, error) {
	// Demo keys are generated per run; restart invalidates all tokens.
	cfg := authgate.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "authgate-demo"
	// Fast hashing for the demo only.
	cfg.Password.Memory = 32 * 1024
	cfg.Password.Time = 1
	cfg.Security.RequireSecureCookies = false

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	seedHash, err := hasher.Hash(demoPassword)
	if err != nil {
		return nil, err
	}

	credentials := authgate.NewStaticCredentials(authgate.AdminIdentity{
		Email:        demoEmail,
		PasswordHash: seedHash,
	})

	return authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentials(credentials).
		WithAuditSink(authgate.NewJSONWriterSink(os.Stdout)).
		WithAuditEnabled(true).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
}

func pingHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := authgate.IdentityFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message": "hello, " + identity.Subject,
		"role":    identity.Role,
	})
}
