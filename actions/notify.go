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

package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// DispatcherConfig configures the stock notification channels
type DispatcherConfig struct {
	// SlackWebhookURL is the Slack incoming-webhook endpoint
	SlackWebhookURL string
	// SMTPAddr is host:port of the mail relay; empty disables email
	SMTPAddr string
	// SMTPFrom is the sender address for email notifications
	SMTPFrom string
	// EmailTo is the default recipient list when a policy names none
	EmailTo []string
	// Timeout bounds outbound HTTP calls; 0 selects DefaultWebhookTimeout
	Timeout time.Duration
}

// Dispatcher implements Notifier over Slack incoming webhooks, SMTP email,
// and generic webhooks.
type Dispatcher struct {
	cfg    DispatcherConfig
	client *http.Client
	log    *logger.Logger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Notify sends one notification on the named channel
func (d *Dispatcher) Notify(ctx context.Context, channel string, ev *types.Event, params map[string]interface{}) error {
	switch channel {
	case ChannelSlack:
		return d.notifySlack(ctx, ev, params)
	case ChannelEmail:
		return d.notifyEmail(ev, params)
	case ChannelWebhook:
		return d.notifyWebhook(ctx, ev, params)
	default:
		return fmt.Errorf("unknown notification channel %q", channel)
	}
}

// summaryLine renders the one-line incident description used by every channel
func summaryLine(ev *types.Event) string {
	kinds := make([]string, 0, len(ev.Classification))
	seen := make(map[string]bool)
	for _, hit := range ev.Classification {
		if !seen[hit.Type] {
			seen[hit.Type] = true
			kinds = append(kinds, hit.Type)
		}
	}

	detail := "no classified data"
	if len(kinds) > 0 {
		detail = strings.Join(kinds, ", ")
	}
	verdict := "allowed"
	if ev.Blocked {
		verdict = "blocked"
	}
	return fmt.Sprintf("DLP incident %s: %s event on agent %s (%s), %s: %s",
		ev.EventID, ev.Type, ev.Agent.ID, detail, string(ev.Severity), verdict)
}

func (d *Dispatcher) notifySlack(ctx context.Context, ev *types.Event, params map[string]interface{}) error {
	url := d.cfg.SlackWebhookURL
	if override, ok := params["webhook_url"].(string); ok && override != "" {
		url = override
	}
	if url == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	body, err := json.Marshal(map[string]string{"text": summaryLine(ev)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) notifyEmail(ev *types.Event, params map[string]interface{}) error {
	if d.cfg.SMTPAddr == "" {
		return fmt.Errorf("SMTP relay not configured")
	}

	to := d.cfg.EmailTo
	if raw, ok := params["to"].([]interface{}); ok {
		to = to[:0]
		for _, item := range raw {
			if s, ok := item.(string); ok {
				to = append(to, s)
			}
		}
	}
	if len(to) == 0 {
		return fmt.Errorf("email notification has no recipients")
	}

	subject := fmt.Sprintf("[CyberSentinel] %s incident %s", strings.ToUpper(string(ev.Severity)), ev.EventID)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		d.cfg.SMTPFrom, strings.Join(to, ", "), subject, summaryLine(ev))

	if err := smtp.SendMail(d.cfg.SMTPAddr, nil, d.cfg.SMTPFrom, to, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (d *Dispatcher) notifyWebhook(ctx context.Context, ev *types.Event, params map[string]interface{}) error {
	url, _ := params["url"].(string)
	if url == "" {
		return fmt.Errorf("webhook notification requires a url param")
	}

	body, err := json.Marshal(map[string]interface{}{
		"event_id": ev.EventID,
		"agent_id": ev.Agent.ID,
		"severity": string(ev.Severity),
		"blocked":  ev.Blocked,
		"summary":  summaryLine(ev),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
