// Package projects is a client for the external project-storage API, which is
// the system of record for proposal projects.
package projects

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	apperrors "github.com/coedaniel/aws-propuestas-v3/internal/errors"
)

const upstreamName = "projects-api"

// Known project statuses. Matching is case-insensitive.
const (
	StatusDraft      = "DRAFT"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusArchived   = "ARCHIVED"
)

var validStatuses = map[string]bool{
	StatusDraft:      true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusArchived:   true,
}

// Project is the subset of the remote project record this service reads.
type Project struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Status        string         `json:"status,omitempty"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
	DocumentCount int            `json:"documentCount,omitempty"`
	LastMessage   string         `json:"lastMessage,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields the UI depends on.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project %s: name is required", p.ID)
	}
	if p.Status != "" && !validStatuses[strings.ToUpper(p.Status)] {
		return fmt.Errorf("project %s: unknown status %q", p.ID, p.Status)
	}
	if p.DocumentCount < 0 {
		return fmt.Errorf("project %s: negative document count", p.ID)
	}
	return nil
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate checks a create request before it leaves the process.
func (in *CreateInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return apperrors.NewInvalidRequest("name is required")
	}
	if in.Status != "" && !validStatuses[strings.ToUpper(in.Status)] {
		return apperrors.NewInvalidRequest(fmt.Sprintf("unknown status %q", in.Status))
	}
	return nil
}

// DocumentRequest asks the external API to generate proposal documents.
type DocumentRequest struct {
	ProjectID   string         `json:"projectId"`
	ProjectName string         `json:"projectName,omitempty"`
	Types       []string       `json:"types,omitempty"`
	Messages    []any          `json:"messages,omitempty"`
	ProjectData map[string]any `json:"projectData,omitempty"`
}

// Validate requires a project id.
func (r *DocumentRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return apperrors.NewInvalidRequest("projectId is required")
	}
	return nil
}

// decodeProjectList accepts a bare array or an object with a "projects" array.
func decodeProjectList(data []byte) ([]Project, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, apperrors.NewContractViolation(upstreamName, "empty body")
	}

	var list []Project
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, apperrors.NewContractViolation(upstreamName, err.Error())
		}
	case '{':
		var wrapped struct {
			Projects *[]Project `json:"projects"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, apperrors.NewContractViolation(upstreamName, err.Error())
		}
		if wrapped.Projects == nil {
			return nil, apperrors.NewContractViolation(upstreamName, `missing "projects" array`)
		}
		list = *wrapped.Projects
	default:
		return nil, apperrors.NewContractViolation(upstreamName, "expected array or object")
	}

	if list == nil {
		list = []Project{}
	}
	for i := range list {
		if err := list[i].Validate(); err != nil {
			return nil, apperrors.NewContractViolation(upstreamName, err.Error())
		}
	}
	return list, nil
}

// decodeProject accepts a bare project or an object with a "project" field.
func decodeProject(data []byte) (*Project, error) {
	var wrapped struct {
		Project *Project `json:"project"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, apperrors.NewContractViolation(upstreamName, err.Error())
	}
	p := wrapped.Project
	if p == nil {
		p = &Project{}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, apperrors.NewContractViolation(upstreamName, err.Error())
		}
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.NewContractViolation(upstreamName, err.Error())
	}
	return p, nil
}
