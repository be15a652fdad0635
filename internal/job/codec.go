package job

import "encoding/json"

// IdentityHeaders are attached to every outbound request at enqueue time.
var IdentityHeaders = map[string]string{
	"User-Agent": "EZworker/1.0",
	"Accept":     "application/json",
}

// pullEnvelope mirrors the coordinator's pull response body.
//
//	{"success": true, "job": {"id": "...", "target_url": "...", "method": "GET", "body": "..." | null}}
type pullEnvelope struct {
	Success bool       `json:"success"`
	Job     *pulledJob `json:"job"`
}

type pulledJob struct {
	ID        string  `json:"id"`
	TargetURL string  `json:"target_url"`
	Method    string  `json:"method"`
	Body      *string `json:"body"`
}

// DecodePullResponse parses the coordinator's JSON pull envelope. It returns
// (nil, nil) for any shape that is not an unambiguous single job — absent
// success, success=false, or absent job all degrade to "no job" rather than
// an error, matching the coordinator contract's tolerant parsing rules.
func DecodePullResponse(body []byte) (*Job, error) {
	var env pullEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	if !env.Success || env.Job == nil {
		return nil, nil
	}

	pulled := env.Job
	if pulled.ID == "" || pulled.TargetURL == "" {
		return nil, nil
	}

	var bodyBytes []byte
	if pulled.Body != nil {
		bodyBytes = []byte(*pulled.Body)
	}

	headers := make(map[string]string, len(IdentityHeaders))
	for k, v := range IdentityHeaders {
		headers[k] = v
	}

	return &Job{
		ID:      pulled.ID,
		URL:     pulled.TargetURL,
		Method:  pulled.Method,
		Body:    bodyBytes,
		Timeout: DefaultTimeout,
		Headers: headers,
	}, nil
}

// reportEnvelope mirrors the body POSTed back to the coordinator.
type reportEnvelope struct {
	JobID      string  `json:"id"`
	Success    bool    `json:"success"`
	StatusCode *int    `json:"status_code"`
	Body       string  `json:"response_body"`
	ErrorKind  *string `json:"error_kind"`
	ElapsedMs  int64   `json:"elapsed_ms"`
}

// EncodeResult serializes a Result into the coordinator's report envelope.
func EncodeResult(r Result) ([]byte, error) {
	env := reportEnvelope{
		JobID:      r.JobID,
		Success:    r.Success,
		StatusCode: r.StatusCode,
		Body:       string(r.Body),
		ErrorKind:  r.ErrorKind,
		ElapsedMs:  r.ElapsedMs,
	}
	return json.Marshal(env)
}
