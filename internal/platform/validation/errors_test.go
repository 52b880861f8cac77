package validation

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleReq struct {
	Name    string   `json:"name" validate:"required"`
	AgentID string   `json:"agent_id" validate:"omitempty,uuid"`
	Groups  []string `json:"group_ids" validate:"omitempty,dive,uuid"`
}

func TestErrorResponse_FieldNamesFromJSONTags(t *testing.T) {
	v := New()

	err := v.Validate(&sampleReq{})
	assert.Error(t, err)

	body := ErrorResponse(err)
	assert.Equal(t, "validation_failed", body.Error)
	assert.Contains(t, body.Fields, "name")
	assert.Equal(t, []string{"required"}, body.Fields["name"])
}

func TestStatus_MalformedIdentifiersAre422(t *testing.T) {
	v := New()

	// Missing required field: plain bad request.
	err := v.Validate(&sampleReq{AgentID: "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, Status(err))

	// Only failure is an identifier format: unprocessable.
	err = v.Validate(&sampleReq{Name: "ok", AgentID: "not-a-uuid"})
	assert.Equal(t, http.StatusUnprocessableEntity, Status(err))

	err = v.Validate(&sampleReq{Name: "ok", Groups: []string{"also-not-a-uuid"}})
	assert.Equal(t, http.StatusUnprocessableEntity, Status(err))

	// Non-validator errors stay 400.
	assert.Equal(t, http.StatusBadRequest, Status(errors.New("boom")))
}
