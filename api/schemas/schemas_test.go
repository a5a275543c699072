package schemas_test

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// -- Test Helpers --

// getTestTime provides a fixed, reproducible timestamp for consistent test results.
func getTestTime(t *testing.T) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, "2025-10-26T10:00:00.123456789Z")
	require.NoError(t, err, "Test setup failed: unable to parse fixed timestamp")
	return ts
}

// -- Test Cases --

func TestSemanticTypeEnumerationIsClosed(t *testing.T) {
	t.Parallel()
	seen := make(map[schemas.SemanticType]bool)
	for _, st := range schemas.AllSemanticTypes {
		assert.False(t, seen[st], "duplicate semantic type %q", st)
		seen[st] = true
	}
	assert.Len(t, seen, 19)
	assert.True(t, seen[schemas.TypeUnknown])
	assert.Equal(t, "email_confirm", schemas.TypeEmailConfirm.String())
}

func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "ProcessingOutcome",
			structRef: schemas.ProcessingOutcome{},
			expectedTags: map[string]string{
				"Target":           "target",
				"Status":           "status",
				"FilledFieldCount": "filled_field_count",
				"ErrorKind":        "error_type",
				"ErrorDetails":     "error_details",
			},
		},
		{
			name:      "TargetRecord",
			structRef: schemas.TargetRecord{},
			expectedTags: map[string]string{
				"CompanyName": "company_name",
				"URL":         "url",
				"ContactURL":  "contact_url",
				"Message":     "message",
			},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			typ := reflect.TypeOf(tt.structRef)
			for field, expected := range tt.expectedTags {
				f, ok := typ.FieldByName(field)
				require.True(t, ok, "field %s missing", field)
				tag := strings.Split(f.Tag.Get("json"), ",")[0]
				assert.Equal(t, expected, tag, "json tag for %s", field)
			}
		})
	}
}

func TestSplitNameAndNormalize(t *testing.T) {
	t.Parallel()
	last, first := schemas.SplitName("山田　太郎")
	assert.Equal(t, "山田", last)
	assert.Equal(t, "太郎", first)

	last, first = schemas.SplitName("Taro")
	assert.Equal(t, "Taro", last)
	assert.Empty(t, first)

	p := schemas.SenderProfile{Name: "山田 太郎", Furigana: "ヤマダ タロウ", LastName: ""}
	n := p.Normalized()
	assert.Equal(t, "山田", n.LastName)
	assert.Equal(t, "タロウ", n.FirstNameKana)
	assert.Empty(t, p.LastName, "receiver must not be modified")

	explicit := schemas.SenderProfile{Name: "山田 太郎", LastName: "Yamada"}.Normalized()
	assert.Equal(t, "Yamada", explicit.LastName)
	assert.Empty(t, explicit.FirstName)
}

func TestFieldKind(t *testing.T) {
	t.Parallel()
	cases := map[schemas.FieldKind]schemas.FieldDescriptor{
		schemas.KindSelect:   {Tag: "select"},
		schemas.KindText:     {Tag: "textarea"},
		schemas.KindCheckbox: {Tag: "input", InputType: "checkbox"},
		schemas.KindRadio:    {Tag: "INPUT", InputType: "Radio"},
		schemas.KindEditable: {Tag: "div", Editable: true},
	}
	for want, fd := range cases {
		assert.Equal(t, want, fd.Kind())
	}
	assert.Equal(t, schemas.KindText, schemas.FieldDescriptor{Tag: "input", InputType: "email"}.Kind())
}

func TestBoxGeometry(t *testing.T) {
	t.Parallel()
	a := schemas.Box{X: 0, Y: 0, Width: 100, Height: 20}
	b := schemas.Box{X: 0, Y: 50, Width: 100, Height: 20}
	assert.InDelta(t, 30.0, a.Gap(b), 1e-9)
	assert.InDelta(t, 0.0, a.Gap(schemas.Box{X: 50, Y: 10, Width: 10, Height: 10}), 1e-9)
	c := schemas.Box{X: 130, Y: 60, Width: 10, Height: 10}
	assert.InDelta(t, 50.0, a.Gap(c), 1e-9)
	assert.True(t, a.Contains(50, 10))
	assert.False(t, a.Contains(50, 30))
	assert.True(t, schemas.Box{}.Empty())
}

func TestProcessingErrorKinds(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("dial tcp: timeout")
	err := fmt.Errorf("processing acme: %w", schemas.NewError(schemas.ErrorNavigation, cause))

	assert.True(t, errors.Is(err, schemas.ErrNavigation))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, schemas.ErrNoFormFound))
	assert.Equal(t, schemas.ErrorNavigation, schemas.KindOf(err))

	assert.Equal(t, schemas.ErrorNoFormFound, schemas.KindOf(fmt.Errorf("wrapped: %w", schemas.ErrNoFormFound)))
	assert.Equal(t, schemas.ErrorUnexpected, schemas.KindOf(errors.New("boom")))
	assert.Equal(t, schemas.ErrorNone, schemas.KindOf(nil))

	bare := schemas.NewError(schemas.ErrorHumanVerification, nil)
	assert.ErrorIs(t, bare, schemas.ErrHumanVerification)
}

func TestOutcomeDuration(t *testing.T) {
	t.Parallel()
	start := getTestTime(t)
	o := schemas.ProcessingOutcome{StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	assert.Equal(t, 1500*time.Millisecond, o.Duration())
}

func TestGeometryCenter(t *testing.T) {
	t.Parallel()
	g := &schemas.ElementGeometry{Vertices: []float64{0, 0, 10, 0, 10, 20, 0, 20}}
	x, y := g.Center()
	assert.Equal(t, 5.0, x)
	assert.Equal(t, 10.0, y)
	var nilGeo *schemas.ElementGeometry
	x, y = nilGeo.Center()
	assert.Zero(t, x+y)
}
