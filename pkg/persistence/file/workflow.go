package file

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
)

// WorkflowRepository handles workflow, tag and association records.
type WorkflowRepository struct {
	p *Persistence
}

func (r *WorkflowRepository) Mirror(_ context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	tags := models.NormalizeTags(workflow.Tags)

	var saved workflowRecord

	err := r.p.update(func(s *state) error {
		record, ok := s.Workflows[workflow.ExternalID]
		if !ok {
			s.LastWorkflowID++
			record = &workflowRecord{
				ID:         s.LastWorkflowID,
				ExternalID: workflow.ExternalID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			s.Workflows[workflow.ExternalID] = record
		} else if record.Name != workflow.Name || record.Active != workflow.Active || record.VersionID != workflow.VersionID {
			record.UpdatedAt = now
		}

		record.Name = workflow.Name
		record.Active = workflow.Active
		record.VersionID = workflow.VersionID
		record.TagIDs = make([]int64, 0, len(tags))

		for _, name := range tags {
			record.TagIDs = append(record.TagIDs, s.upsertTag(name))
		}

		saved = *record

		return nil
	})
	if err != nil {
		return persistence.NewWorkflowError("Mirror", workflow.ExternalID, err)
	}

	workflow.ID = saved.ID
	workflow.CreatedAt = saved.CreatedAt
	workflow.UpdatedAt = saved.UpdatedAt
	workflow.Tags = tags

	return nil
}

func (s *state) upsertTag(name string) int64 {
	for _, tag := range s.Tags {
		if strings.EqualFold(tag.Name, name) {
			return tag.ID
		}
	}

	s.LastTagID++
	s.Tags = append(s.Tags, &tagRecord{ID: s.LastTagID, Name: name})

	return s.LastTagID
}

func (s *state) toModel(record *workflowRecord) *models.Workflow {
	names := make(map[int64]string, len(s.Tags))
	for _, tag := range s.Tags {
		names[tag.ID] = tag.Name
	}

	tags := make([]string, 0, len(record.TagIDs))
	for _, id := range record.TagIDs {
		if name, ok := names[id]; ok {
			tags = append(tags, name)
		}
	}

	sort.Slice(tags, func(i, j int) bool { return strings.ToLower(tags[i]) < strings.ToLower(tags[j]) })

	return &models.Workflow{
		ID:         record.ID,
		ExternalID: record.ExternalID,
		Name:       record.Name,
		Active:     record.Active,
		VersionID:  record.VersionID,
		Tags:       tags,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func (r *WorkflowRepository) GetByExternalID(_ context.Context, externalID string) (*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	record, ok := r.p.state.Workflows[externalID]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByExternalID", externalID, persistence.ErrWorkflowNotFound)
	}

	return r.p.state.toModel(record), nil
}

func (r *WorkflowRepository) SetActive(_ context.Context, externalID string, active bool, versionID string) error {
	return r.p.update(func(s *state) error {
		record, ok := s.Workflows[externalID]
		if !ok {
			return persistence.NewWorkflowError("SetActive", externalID, persistence.ErrWorkflowNotFound)
		}

		if versionID == "" {
			versionID = record.VersionID
		}

		if record.Active != active || record.VersionID != versionID {
			record.Active = active
			record.VersionID = versionID
			record.UpdatedAt = time.Now().UTC()
		}

		return nil
	})
}

func (r *WorkflowRepository) List(_ context.Context, callerID string) ([]*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.p.state.Workflows))

	for _, record := range r.p.state.Workflows {
		workflow := r.p.state.toModel(record)

		if callerID != "" {
			enabled := true
			if setting, ok := r.p.state.Settings[overlayKey(callerID, record.ID)]; ok {
				enabled = setting.IsEnabled
			}

			workflow.EnabledForCaller = &enabled
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		a, b := strings.ToLower(workflows[i].Name), strings.ToLower(workflows[j].Name)
		if a != b {
			return a < b
		}

		return workflows[i].ID < workflows[j].ID
	})

	return workflows, nil
}

func (r *WorkflowRepository) EligibleUsers(_ context.Context, workflowID int64, onlyEnabled bool) ([]*models.User, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	users := make([]*models.User, 0)

	for _, record := range r.p.state.Users {
		if !record.IsActive {
			continue
		}

		if setting, ok := r.p.state.Settings[overlayKey(record.ID, workflowID)]; ok && onlyEnabled && !setting.IsEnabled {
			continue
		}

		user := &models.User{
			ID:          record.ID,
			Username:    record.Username,
			Email:       record.Email,
			IsActive:    true,
			CreatedAt:   record.CreatedAt,
			Credentials: make([]models.Credential, 0),
		}

		for _, credential := range r.p.state.Credentials {
			if credential.UserID == record.ID {
				user.Credentials = append(user.Credentials, models.Credential{
					UserID:      credential.UserID,
					Provider:    credential.Provider,
					ExternalID:  credential.ExternalID,
					DisplayName: credential.DisplayName,
				})
			}
		}

		sort.Slice(user.Credentials, func(i, j int) bool {
			return user.Credentials[i].Provider < user.Credentials[j].Provider
		})

		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	return users, nil
}
