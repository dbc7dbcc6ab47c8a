package model

// HardFetchLimit caps the number of tasks handed out by one fetch.
const HardFetchLimit = 32

type RegisterRequest struct {
	Name string `json:"name"`
}

type RegisterResponse struct {
	APIKey string `json:"api_key"`
}

type FetchTasksRequest struct {
	ProjectIDs []ProjectID `json:"project_ids"`
	Limit      int         `json:"limit"`
}

type SubmitResultRequest struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode *int32 `json:"exit_code"`
}
