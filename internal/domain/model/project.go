package model

import "time"

type Project struct {
	ID         ProjectID  `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	DisabledAt *time.Time `json:"disabled_at"`
	Name       string     `json:"name"`
}

func (p *Project) Disabled() bool { return p.DisabledAt != nil }

type ProjectFilter struct {
	Disabled *bool `json:"disabled,omitempty"`
}

// ProjectVersion is one build of a project for one platform.
type ProjectVersion struct {
	ID         ProjectVersionID `json:"id"`
	CreatedAt  time.Time        `json:"created_at"`
	DisabledAt *time.Time       `json:"disabled_at"`
	ProjectID  ProjectID        `json:"project_id"`
	PlatformID PlatformID       `json:"platform_id"`
	ArchiveURL string           `json:"archive_url"`
}

func (v *ProjectVersion) Disabled() bool { return v.DisabledAt != nil }

type ProjectVersionFilter struct {
	Disabled   *bool       `json:"disabled,omitempty"`
	ProjectID  *ProjectID  `json:"project_id,omitempty"`
	PlatformID *PlatformID `json:"platform_id,omitempty"`
}
