package monitor

// ProblemFeed is the problems-listing response.
type ProblemFeed struct {
	TotalCount int       `json:"totalCount"`
	Problems   []Problem `json:"problems"`
}

// Problem is one detected problem record.
type Problem struct {
	ProblemID        string           `json:"problemId"`
	Title            string           `json:"title"`
	Status           string           `json:"status"`
	SeverityLevel    string           `json:"severityLevel"`
	StartTime        int64            `json:"startTime"`
	EndTime          int64            `json:"endTime,omitempty"`
	AffectedEntities []Entity         `json:"affectedEntities,omitempty"`
	ManagementZones  []ManagementZone `json:"managementZones,omitempty"`
}

// Entity is a monitored entity affected by a problem.
type Entity struct {
	EntityID EntityID `json:"entityId"`
	Name     string   `json:"name"`
}

// EntityID identifies an entity by id and type.
type EntityID struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ManagementZone scopes a problem to an organizational zone.
type ManagementZone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Environment is the environment-info response.
type Environment struct {
	EnvironmentID string `json:"environmentId"`
	State         string `json:"state"`
	CreateTime    string `json:"createTime"`
}
