package modules

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"vigil/internal/models"
	"vigil/pkg/hub"
)

// Resolver is the subset of net.Resolver the dns module uses.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// NewDNSModule returns the native reachability check: resolve the target's
// host, then see whether it answers HTTPS.
func NewDNSModule(resolver Resolver, client *http.Client) Module {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return Module{
		Name:        "dns",
		Category:    models.CategoryQuick,
		Description: "DNS resolution and HTTPS reachability check",
		Run: func(ctx context.Context, job Job) (Outcome, error) {
			job = job.WithDefaults()
			domain := hostOf(job.Target)
			if domain == "" {
				return Outcome{}, fmt.Errorf("a non-empty domain or URL is required")
			}

			addrs, err := resolver.LookupHost(ctx, domain)
			if err != nil {
				return Outcome{}, fmt.Errorf("unresolvable domain %s: %w", domain, err)
			}
			job.Reporter.ReportProgress(hub.Info("dns", fmt.Sprintf("%s resolves to %d address(es)", domain, len(addrs))))

			data := map[string]any{
				"domain":      domain,
				"addresses":   addrs,
				"resolvable":  false,
				"http_status": nil,
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+domain, nil)
			if err != nil {
				return Outcome{}, err
			}
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				data["resolvable"] = true
				data["http_status"] = resp.StatusCode
			}

			return Outcome{Data: data}, nil
		},
	}
}
