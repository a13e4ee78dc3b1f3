package dockerresolver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// CertIssuer issues a SecurityContext for a hostname. internal/certmgr's
// Manager satisfies this.
type CertIssuer interface {
	Resolve(hostname string) (*tls.Certificate, error)
	EnsureCertificate(domain string) error
}

// Backend is where a recognized hostname's traffic should ultimately
// land, for a caller's own routing behind sniterm's plaintext Conns().
type Backend struct {
	ContainerID   string
	ContainerName string
	Address       string // host:port
}

// Resolver maintains a hostname -> Backend table built from Docker
// container labels, kept current by a Watcher, and exposes Resolve as
// a sniterm ResolverFunc: a recognized hostname is handed to CertIssuer
// for certificate issuance, and an unrecognized one yields (nil, nil)
// so callers can chain a fallback resolver or a default context.
type Resolver struct {
	client  *Client
	parser  *LabelParser
	issuer  CertIssuer
	network string
	logger  *slog.Logger

	mu         sync.RWMutex
	hosts      map[string]Backend  // hostname -> backend
	containers map[string][]string // containerID -> hostnames it registered
}

// NewResolver creates a Resolver. issuer may be nil, in which case
// Resolve only reports whether a hostname is known, returning
// (nil, nil) for both known-without-issuer and unknown hostnames.
func NewResolver(client *Client, network string, issuer CertIssuer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:     client,
		parser:     NewLabelParser(),
		issuer:     issuer,
		network:    network,
		logger:     logger,
		hosts:      make(map[string]Backend),
		containers: make(map[string][]string),
	}
}

// Resolve implements sniterm's ResolverFunc: it returns a
// SecurityContext for any hostname this resolver has learned about
// from a running container's labels, or (nil, nil) if the hostname is
// unknown so a caller-configured fallback resolver or default context
// can take over.
func (r *Resolver) Resolve(hostname string) (*tls.Certificate, error) {
	r.mu.RLock()
	_, known := r.hosts[hostname]
	r.mu.RUnlock()

	if !known {
		return nil, nil
	}
	if r.issuer == nil {
		return nil, nil
	}
	return r.issuer.Resolve(hostname)
}

// Backend returns the backend a recognized hostname should forward to,
// and whether the hostname is known.
func (r *Resolver) Backend(hostname string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.hosts[hostname]
	return b, ok
}

// HandleEvent processes a container lifecycle event, registering or
// deregistering the hostnames its labels declare. It is the EventHandler
// passed to Watcher.
func (r *Resolver) HandleEvent(event ContainerEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic handling container event", "recover", rec, "type", event.Type, "container", event.ContainerName)
		}
	}()

	switch event.Type {
	case "start":
		r.handleStart(event)
	case "stop", "die":
		r.handleStop(event)
	}
}

func (r *Resolver) handleStart(event ContainerEvent) {
	ctx := context.Background()

	configs, err := r.parser.ParseLabels(event.Labels)
	if err != nil {
		r.logger.Warn("failed to parse container labels", "container", shortID(event.ContainerID), "error", err)
		return
	}
	if len(configs) == 0 {
		return
	}

	ip, err := r.resolveContainerIP(ctx, event.ContainerID)
	if err != nil {
		r.logger.Error("failed to resolve container IP", "container", shortID(event.ContainerID), "error", err)
		return
	}

	containerName := event.ContainerName
	if containerName == "" {
		containerName = r.getContainerName(ctx, event.ContainerID)
	}

	var hosts []string
	for _, config := range configs {
		for _, host := range strings.Split(config.Host, ",") {
			host = strings.TrimSpace(host)
			if host == "" {
				continue
			}

			backend := Backend{
				ContainerID:   event.ContainerID,
				ContainerName: containerName,
				Address:       fmt.Sprintf("%s:%d", ip, config.Port),
			}

			r.mu.Lock()
			r.hosts[host] = backend
			r.mu.Unlock()

			r.logger.Info("hostname registered", "host", host, "backend", backend.Address, "container", containerName)
			hosts = append(hosts, host)

			if r.issuer != nil {
				if err := r.issuer.EnsureCertificate(host); err != nil {
					r.logger.Warn("failed to pre-issue certificate", "host", host, "error", err)
				}
			}
		}
	}

	if len(hosts) > 0 {
		r.mu.Lock()
		r.containers[event.ContainerID] = hosts
		r.mu.Unlock()
	}
}

func (r *Resolver) handleStop(event ContainerEvent) {
	r.mu.Lock()
	hosts, exists := r.containers[event.ContainerID]
	if exists {
		delete(r.containers, event.ContainerID)
		for _, host := range hosts {
			delete(r.hosts, host)
		}
	}
	r.mu.Unlock()

	for _, host := range hosts {
		r.logger.Info("hostname deregistered", "host", host, "container", shortID(event.ContainerID))
	}
}

func (r *Resolver) resolveContainerIP(ctx context.Context, containerID string) (string, error) {
	if r.client.API() == nil {
		return "", fmt.Errorf("docker client not connected")
	}

	info, err := r.client.API().ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}

	if r.network != "" {
		if network, ok := info.NetworkSettings.Networks[r.network]; ok && network.IPAddress != "" {
			return network.IPAddress, nil
		}
	}

	for _, network := range info.NetworkSettings.Networks {
		if network.IPAddress != "" {
			return network.IPAddress, nil
		}
	}

	return "", fmt.Errorf("no IP address found for container")
}

func (r *Resolver) getContainerName(ctx context.Context, containerID string) string {
	if r.client.API() == nil {
		return shortID(containerID)
	}

	info, err := r.client.API().ContainerInspect(ctx, containerID)
	if err != nil {
		return shortID(containerID)
	}

	name := info.Name
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return name
}

// Hostnames returns a snapshot of all currently registered hostnames.
func (r *Resolver) Hostnames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.hosts))
	for host := range r.hosts {
		result = append(result, host)
	}
	return result
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
