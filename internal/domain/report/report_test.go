package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReport_KindAndEndpoint(t *testing.T) {
	simple := Report{GroupID: "g1", SimpleResponse: ResponseOK}
	assert.Equal(t, KindSimple, simple.Kind())
	assert.Equal(t, EndpointSimple, simple.Endpoint())

	extended := Report{GroupID: "g1", Field2: "на місці"}
	assert.Equal(t, KindExtended, extended.Kind())
	assert.Equal(t, EndpointExtended, extended.Endpoint())
}

func TestReport_Validate(t *testing.T) {
	assert.NoError(t, Report{GroupID: "g1", SimpleResponse: ResponseNotOK}.Validate())
	assert.NoError(t, Report{GroupID: "g1", Field5: "x"}.Validate())
	assert.ErrorIs(t, Report{SimpleResponse: ResponseOK}.Validate(), ErrGroupRequired)
	assert.ErrorIs(t, Report{GroupID: "g1", Field1: "  "}.Validate(), ErrResponseRequired)
}
