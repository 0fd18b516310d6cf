// Copyright 2025 CyberSentinel
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/cors"

	"github.com/Vansh-Raja/cybersentinel-dlp/actions"
	"github.com/Vansh-Raja/cybersentinel-dlp/classify"
	"github.com/Vansh-Raja/cybersentinel-dlp/pipeline"
	"github.com/Vansh-Raja/cybersentinel-dlp/policy"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/siem"
	"github.com/Vansh-Raja/cybersentinel-dlp/storage"
)

// Run assembles the DLP backend from environment configuration and
// serves until SIGINT/SIGTERM. It blocks for the lifetime of the
// process.
//
// Environment variables:
//   - PORT: HTTP listen port (default 8080)
//   - POLICY_DIR: directory of policy YAML files (default ./policies)
//   - AGENT_JWT_SECRET: HS256 secret for agent tokens; auth disabled when unset
//   - DATABASE_URL: Postgres DSN; event persistence disabled when unset
//   - REDIS_URL: Redis URL for action dedup; in-memory dedup when unset
//   - QUARANTINE_DIR: quarantine directory (default ./quarantine)
//   - ENCRYPTION_KEY: hex-encoded 32-byte AES key for encrypt/quarantine
//   - ENCRYPTION_KEY_ID: identifier recorded on encrypted content
//   - ELK_URL, ELK_USERNAME, ELK_PASSWORD, ELK_API_KEY, ELK_INDEX_PREFIX
//   - SPLUNK_HEC_URL, SPLUNK_HEC_TOKEN, SPLUNK_INDEX, SPLUNK_MANAGEMENT_URL,
//     SPLUNK_USERNAME, SPLUNK_PASSWORD
//   - SLACK_WEBHOOK_URL, SMTP_ADDR, SMTP_FROM, EMAIL_TO
func Run() {
	log := logger.New("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Policy catalog with hot reload
	policyDir := getEnv("POLICY_DIR", "./policies")
	catalog := policy.NewCatalog(policyDir, logger.New("policy"))
	if err := catalog.Load(); err != nil {
		log.Error("", "", "policy load failed", map[string]interface{}{"error": err.Error(), "dir": policyDir})
		os.Exit(1)
	}
	watcher, err := policy.WatchCatalog(catalog, policy.DefaultDebounce, logger.New("policy"))
	if err != nil {
		log.Warn("", "", "policy watcher unavailable, reload via API only", map[string]interface{}{"error": err.Error()})
	} else {
		defer watcher.Close()
	}

	// Classifier with the stock detector set
	classifier := classify.NewClassifier(0.5)
	for _, d := range classify.StockDetectors() {
		classifier.Register(d)
	}

	// SIEM connectors from environment
	siemSvc := siem.NewService(logger.New("siem"))
	if elkURL := os.Getenv("ELK_URL"); elkURL != "" {
		siemSvc.Register(siem.NewELKConnector("elk", siem.ELKConfig{
			URL:         elkURL,
			Username:    os.Getenv("ELK_USERNAME"),
			Password:    os.Getenv("ELK_PASSWORD"),
			APIKey:      os.Getenv("ELK_API_KEY"),
			IndexPrefix: os.Getenv("ELK_INDEX_PREFIX"),
			VerifyCerts: os.Getenv("ELK_VERIFY_CERTS") != "false",
		}, logger.New("siem")))
	}
	if hecURL := os.Getenv("SPLUNK_HEC_URL"); hecURL != "" {
		siemSvc.Register(siem.NewSplunkConnector("splunk", siem.SplunkConfig{
			HECURL:        hecURL,
			HECToken:      os.Getenv("SPLUNK_HEC_TOKEN"),
			Index:         os.Getenv("SPLUNK_INDEX"),
			Host:          hostname(),
			ManagementURL: os.Getenv("SPLUNK_MANAGEMENT_URL"),
			Username:      os.Getenv("SPLUNK_USERNAME"),
			Password:      os.Getenv("SPLUNK_PASSWORD"),
			VerifyCerts:   os.Getenv("SPLUNK_VERIFY_CERTS") != "false",
		}, logger.New("siem")))
	}
	for name, err := range siemSvc.ConnectAll(ctx) {
		if err != nil {
			log.Warn("", "", "SIEM connector failed to connect, will retry on delivery", map[string]interface{}{
				"connector": name,
				"error":     err.Error(),
			})
		}
	}
	defer siemSvc.DisconnectAll(context.Background())

	// Executor options assembled from the optional integrations
	execOpts := []actions.Option{actions.WithSIEM(siemSvc)}

	encKey := decodeKey(log, os.Getenv("ENCRYPTION_KEY"))
	if encKey != nil {
		execOpts = append(execOpts, actions.WithEncryptionKey(encKey, getEnv("ENCRYPTION_KEY_ID", "default")))
	}

	quarantine, err := storage.NewFileQuarantine(getEnv("QUARANTINE_DIR", "./quarantine"), encKey, logger.New("storage"))
	if err != nil {
		log.Error("", "", "quarantine init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	execOpts = append(execOpts, actions.WithQuarantine(quarantine))

	execOpts = append(execOpts, actions.WithNotifier(actions.NewDispatcher(actions.DispatcherConfig{
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		SMTPAddr:        os.Getenv("SMTP_ADDR"),
		SMTPFrom:        os.Getenv("SMTP_FROM"),
		EmailTo:         splitList(os.Getenv("EMAIL_TO")),
	}, logger.New("actions"))))

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Warn("", "", "invalid REDIS_URL, using in-memory action dedup", map[string]interface{}{"error": err.Error()})
		} else {
			client := redis.NewClient(redisOpts)
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("", "", "redis unreachable, using in-memory action dedup", map[string]interface{}{"error": err.Error()})
			} else {
				execOpts = append(execOpts, actions.WithDeduper(actions.NewRedisDeduper(client, actions.DefaultDedupTTL)))
				defer client.Close()
			}
		}
	}

	// Event persistence
	var pipeOpts []pipeline.Option
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := storage.Open(dsn)
		if err != nil {
			log.Error("", "", "database connection failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		defer db.Close()

		store := storage.NewEventStore(db, logger.New("storage"))
		if err := store.InitSchema(ctx); err != nil {
			log.Error("", "", "schema init failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		pipeOpts = append(pipeOpts, pipeline.WithStore(store))
		execOpts = append(execOpts, actions.WithAuditSink(store))
	} else {
		log.Warn("", "", "DATABASE_URL not set, event persistence disabled", nil)
	}

	executor := actions.NewExecutor(logger.New("actions"), execOpts...)
	pipeOpts = append(pipeOpts, pipeline.WithSIEM(siemSvc))

	pipe := pipeline.New(pipeline.Config{}, logger.New("pipeline"), catalog, classifier, executor, pipeOpts...)
	pipe.Start(ctx)
	defer pipe.Stop()

	// HTTP layer
	srv := NewServer(log, pipe, catalog, siemSvc)
	jwtSecret := os.Getenv("AGENT_JWT_SECRET")
	if jwtSecret == "" {
		log.Warn("", "", "AGENT_JWT_SECRET not set, agent authentication disabled", nil)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(srv.Router(jwtSecret))

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("", "", "listening", map[string]interface{}{"port": port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("", "", "server failed", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("", "", "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("", "", "shutdown did not complete cleanly", map[string]interface{}{"error": err.Error()})
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList parses a comma-separated env value into its non-empty entries
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return ""
}

// decodeKey parses a hex-encoded 32-byte key, returning nil on any
// problem so encryption-dependent features degrade instead of crashing.
func decodeKey(log *logger.Logger, encoded string) []byte {
	if encoded == "" {
		return nil
	}
	key, err := hex.DecodeString(encoded)
	if err != nil || len(key) != 32 {
		log.Warn("", "", "ENCRYPTION_KEY must be 64 hex chars, content encryption disabled", nil)
		return nil
	}
	return key
}
