package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/cluster"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/domain"
)

const (
	listLimit            = "500"
	builtinProfileType   = "builtin"
	defaultTransport     = "stdio"
	defaultPort          = 8080
	defaultPermissionRef = "network"
)

// ClusterAPI is the subset of the cluster client used by the service.
type ClusterAPI interface {
	Do(ctx context.Context, method, path string, body any) (json.RawMessage, error)
	CollectionPath() string
	ItemPath(name string) string
}

// Options fixes the manifest fields that are not caller controlled.
type Options struct {
	Namespace         string
	APIVersion        string
	Port              int32
	Transport         string
	PermissionProfile string
}

// Owner identifies the caller a server is created for.
type Owner struct {
	ID       string
	Username string
}

// CreateInput is the caller-supplied part of a new MCP server.
type CreateInput struct {
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	Env         map[string]string `json:"envs"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Owner       *Owner            `json:"-"`
}

// Service translates lifecycle requests into cluster API calls.
type Service struct {
	api    ClusterAPI
	policy *Policy
	opts   Options
	logger *slog.Logger
	suffix func() int
}

// New constructs a Service.
func New(api ClusterAPI, policy *Policy, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Port <= 0 {
		opts.Port = defaultPort
	}
	if opts.Transport == "" {
		opts.Transport = defaultTransport
	}
	if opts.PermissionProfile == "" {
		opts.PermissionProfile = defaultPermissionRef
	}
	if policy == nil {
		policy = DefaultPolicy("1", "2Gi")
	}
	return &Service{
		api:    api,
		policy: policy,
		opts:   opts,
		logger: logger,
		suffix: func() int { return rand.IntN(10000) },
	}
}

// List returns the raw MCPServer collection, filtered by label and scoped to
// owner when one is given. The owner label cannot be overridden by filters.
func (s *Service) List(ctx context.Context, filters map[string]string, owner *Owner) (json.RawMessage, error) {
	selector, err := labelSelector(filters, owner)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("limit", listLimit)
	if selector != "" {
		query.Set("labelSelector", selector)
	}
	data, err := s.api.Do(ctx, http.MethodGet, s.api.CollectionPath()+"?"+query.Encode(), nil)
	if err != nil {
		return nil, &UpstreamError{Op: "list", Err: err}
	}
	return data, nil
}

// Get fetches one server. A 404 yields ErrNotFound.
func (s *Service) Get(ctx context.Context, name string) (*domain.MCPServer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidInput("name is required")
	}
	data, err := s.api.Do(ctx, http.MethodGet, s.api.ItemPath(name), nil)
	if err != nil {
		if cluster.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, &UpstreamError{Op: "get", Err: err}
	}
	return decodeServer(data)
}

// Exists downgrades every lookup failure to "does not exist".
func (s *Service) Exists(ctx context.Context, name string) bool {
	_, err := s.Get(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Debug("existence check failed", "name", name, "error", err)
	}
	return err == nil
}

// Create submits a new MCPServer manifest and returns the created object.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.MCPServer, error) {
	manifest, err := s.Manifest(in)
	if err != nil {
		return nil, err
	}
	data, err := s.api.Do(ctx, http.MethodPost, s.api.CollectionPath(), manifest)
	if err != nil {
		var te *cluster.TransportError
		if errors.As(err, &te) && te.Status == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, manifest.Name)
		}
		return nil, &UpstreamError{Op: "create", Err: err}
	}
	s.logger.Info("mcp server created", "name", manifest.Name, "image", manifest.Spec.Image, "owner", manifest.Owner())
	if len(data) == 0 {
		return manifest, nil
	}
	return decodeServer(data)
}

// Delete removes a server. Failures, including 404, are returned as is.
func (s *Service) Delete(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalidInput("name is required")
	}
	if _, err := s.api.Do(ctx, http.MethodDelete, s.api.ItemPath(name), nil); err != nil {
		return &UpstreamError{Op: "delete", Err: err}
	}
	s.logger.Info("mcp server deleted", "name", name)
	return nil
}

// Manifest builds the MCPServer resource Create would submit.
func (s *Service) Manifest(in CreateInput) (*domain.MCPServer, error) {
	requested := strings.TrimSpace(in.Name)
	image := strings.TrimSpace(in.Image)
	if requested == "" {
		return nil, invalidInput("name is required")
	}
	if image == "" {
		return nil, invalidInput("image is required")
	}

	var name string
	if in.Owner != nil && in.Owner.ID != "" {
		name = DeriveName(requested, in.Owner.ID, s.suffix())
	} else {
		name = SanitizeName(requested)
	}
	if errs := validation.IsDNS1123Label(name); len(errs) > 0 {
		return nil, invalidInput("name %q: %s", requested, strings.Join(errs, "; "))
	}

	objLabels := copyMap(in.Labels)
	annotations := copyMap(in.Annotations)
	if annotations == nil {
		annotations = make(map[string]string)
	}
	annotations[domain.RequestedNameAnnotation] = requested
	if in.Owner != nil && in.Owner.ID != "" {
		if objLabels == nil {
			objLabels = make(map[string]string)
		}
		objLabels[domain.OwnerLabel] = in.Owner.ID
		if in.Owner.Username != "" {
			annotations[domain.UsernameAnnotation] = in.Owner.Username
		}
	}
	if _, err := labels.ValidatedSelectorFromSet(objLabels); err != nil {
		return nil, invalidInput("labels: %v", err)
	}

	defaults := s.policy.Resolve(image)
	resources, err := resourceRequirements(defaults)
	if err != nil {
		return nil, err
	}

	return &domain.MCPServer{
		TypeMeta: metav1.TypeMeta{APIVersion: s.opts.APIVersion, Kind: domain.MCPServerKind},
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   s.opts.Namespace,
			Labels:      objLabels,
			Annotations: annotations,
		},
		Spec: domain.MCPServerSpec{
			Image:     image,
			Transport: s.opts.Transport,
			Port:      s.opts.Port,
			Env:       envVars(defaults.Env, in.Env),
			PermissionProfile: &domain.PermissionProfileRef{
				Type: builtinProfileType,
				Name: s.opts.PermissionProfile,
			},
			Resources: resources,
		},
	}, nil
}

func labelSelector(filters map[string]string, owner *Owner) (string, error) {
	set := labels.Set{}
	for k, v := range filters {
		set[k] = v
	}
	if owner != nil && owner.ID != "" {
		set[domain.OwnerLabel] = owner.ID
	}
	if len(set) == 0 {
		return "", nil
	}
	selector, err := labels.ValidatedSelectorFromSet(set)
	if err != nil {
		return "", invalidInput("label filter: %v", err)
	}
	return selector.String(), nil
}

// envVars merges policy env with caller env; caller values win.
func envVars(policyEnv, callerEnv map[string]string) []corev1.EnvVar {
	merged := make(map[string]string, len(policyEnv)+len(callerEnv))
	for k, v := range policyEnv {
		merged[k] = v
	}
	for k, v := range callerEnv {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		env = append(env, corev1.EnvVar{Name: k, Value: merged[k]})
	}
	return env
}

func resourceRequirements(d ImageDefaults) (corev1.ResourceRequirements, error) {
	list := corev1.ResourceList{}
	if d.CPU != "" {
		q, err := resource.ParseQuantity(d.CPU)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("cpu quantity %q: %w", d.CPU, err)
		}
		list[corev1.ResourceCPU] = q
	}
	if d.Memory != "" {
		q, err := resource.ParseQuantity(d.Memory)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("memory quantity %q: %w", d.Memory, err)
		}
		list[corev1.ResourceMemory] = q
	}
	if len(list) == 0 {
		return corev1.ResourceRequirements{}, nil
	}
	return corev1.ResourceRequirements{Requests: list, Limits: list.DeepCopy()}, nil
}

func decodeServer(data json.RawMessage) (*domain.MCPServer, error) {
	var server domain.MCPServer
	if err := json.Unmarshal(data, &server); err != nil {
		return nil, &UpstreamError{Op: "decode", Err: err}
	}
	server.Status.Normalize()
	return &server, nil
}
