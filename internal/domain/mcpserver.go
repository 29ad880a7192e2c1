package domain

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// MCPServerKind is the custom resource kind managed by the platform.
	MCPServerKind = "MCPServer"

	// OwnerLabel scopes servers to the user that created them.
	OwnerLabel = "user"
	// UsernameAnnotation records the owner's display name.
	UsernameAnnotation = "username"
	// RequestedNameAnnotation preserves the name the caller asked for before derivation.
	RequestedNameAnnotation = "mcpforge.io/requested-name"
)

// MCPServerPhase is the lifecycle phase reported by the cluster operator.
type MCPServerPhase string

const (
	PhaseUnknown MCPServerPhase = ""
	PhasePending MCPServerPhase = "Pending"
	PhaseRunning MCPServerPhase = "Running"
	PhaseFailed  MCPServerPhase = "Failed"
)

// MCPServer mirrors the toolhive MCPServer custom resource.
type MCPServer struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   MCPServerSpec   `json:"spec"`
	Status MCPServerStatus `json:"status,omitempty"`
}

// MCPServerSpec is the desired state submitted on create.
type MCPServerSpec struct {
	Image             string                      `json:"image"`
	Transport         string                      `json:"transport,omitempty"`
	Port              int32                       `json:"port,omitempty"`
	Env               []corev1.EnvVar             `json:"env,omitempty"`
	PermissionProfile *PermissionProfileRef       `json:"permissionProfile,omitempty"`
	Resources         corev1.ResourceRequirements `json:"resources,omitempty"`
}

// PermissionProfileRef points at a named permission profile.
type PermissionProfileRef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// MCPServerStatus is written by the operator only.
type MCPServerStatus struct {
	Phase   MCPServerPhase `json:"phase,omitempty"`
	URL     string         `json:"url,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Normalize enforces that URL is only reported for running servers.
func (s *MCPServerStatus) Normalize() {
	if s.Phase != PhaseRunning {
		s.URL = ""
	}
}

// Ready reports whether the server is running with an assigned URL.
func (s MCPServerStatus) Ready() bool {
	return s.Phase == PhaseRunning && s.URL != ""
}

// Owner returns the owner id recorded on the server, if any.
func (m *MCPServer) Owner() string {
	if m == nil || m.Labels == nil {
		return ""
	}
	return m.Labels[OwnerLabel]
}
