package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srq20.org/internal/apiclient"
	"srq20.org/internal/backendtest"
	"srq20.org/internal/questionnaire"
	"srq20.org/internal/session"
	"srq20.org/internal/storage"
)

const password = "senha-segura-1"

func setup(t *testing.T, username string, opts ...backendtest.Option) (*backendtest.Server, *session.Manager, *Service) {
	t.Helper()
	backend := backendtest.New(t, opts...)
	backend.AddUser(backendtest.User{Username: "admin", Email: "admin@example.com", Gender: "F", IsStaff: true}, password)
	backend.AddUser(backendtest.User{Username: "maria", Email: "maria@example.com", Gender: "M"}, password)
	backend.AddUser(backendtest.User{Username: "semgenero", Email: "x@example.com"}, password)

	client, err := apiclient.New(apiclient.Config{BaseURL: backend.URL()})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	sess, err := session.New(context.Background(), storage.NewMemory(), client)
	require.NoError(t, err)
	require.NoError(t, sess.Login(context.Background(), username, password))
	return backend, sess, New(client, sess)
}

func TestNonStaffIsBlockedWithoutRequest(t *testing.T) {
	backend, _, svc := setup(t, "maria")
	before := backend.TotalHits()

	_, err := svc.Statistics(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
	err = svc.Export(context.Background(), FormatCSV, &bytes.Buffer{})
	require.ErrorIs(t, err, ErrPermissionDenied)

	assert.Equal(t, before, backend.TotalHits())
	assert.Zero(t, backend.Hits(http.MethodGet, "/avaliacoes/estatisticas/"))
}

func TestMissingProfileIsBlocked(t *testing.T) {
	backend, sess, svc := setup(t, "admin")
	require.NoError(t, sess.Logout(context.Background()))

	_, err := svc.Statistics(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, backend.Hits(http.MethodGet, "/avaliacoes/estatisticas/"))
}

func TestStatistics(t *testing.T) {
	backend, _, svc := setup(t, "admin")
	now := time.Now()
	backend.SeedAssessment("admin", 2, now)
	backend.SeedAssessment("maria", 10, now)
	backend.SeedAssessment("semgenero", 0, now)

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	require.NotNil(t, stats.MeanScore)
	assert.InDelta(t, 4.0, *stats.MeanScore, 1e-9)

	bands := map[questionnaire.Band]int{}
	for _, b := range stats.ByBand {
		bands[b.Band] = b.Total
	}
	assert.Equal(t, map[questionnaire.Band]int{
		questionnaire.BandNone:     1,
		questionnaire.BandMild:     1,
		questionnaire.BandModerate: 1,
	}, bands)

	require.Len(t, stats.ByGender, 3)
	assert.Nil(t, stats.ByGender[0].Gender)
	assert.Equal(t, "F", *stats.ByGender[1].Gender)
	assert.InDelta(t, 2.0, stats.ByGender[1].Mean, 1e-9)
}

func TestStatisticsEmpty(t *testing.T) {
	_, _, svc := setup(t, "admin")
	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Nil(t, stats.MeanScore)
}

func TestBackendForbiddenMessage(t *testing.T) {
	backend, sess, svc := setup(t, "admin")
	backend.RespondOnce(http.MethodGet, "/avaliacoes/estatisticas/", http.StatusForbidden,
		`{"error":"Você não tem permissão para acessar essas estatísticas."}`)

	_, err := svc.Statistics(context.Background())
	var apiErr *apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Você não tem permissão para acessar essas estatísticas.", apiErr.Error())
	assert.True(t, sess.IsAuthenticated())
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	backend, _, svc := setup(t, "admin")
	err := svc.Export(context.Background(), "xml", &bytes.Buffer{})
	var fmtErr *FormatError
	require.True(t, errors.As(err, &fmtErr))
	assert.Equal(t, "xml", fmtErr.Format)
	assert.Zero(t, backend.Hits(http.MethodGet, "/avaliacoes/export/"))
}

func TestExportJSON(t *testing.T) {
	backend, _, svc := setup(t, "admin")
	backend.SeedAssessment("maria", 5, time.Now())

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), "JSON", &buf))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "maria", rows[0]["usuario"])
	assert.Equal(t, "Leve", rows[0]["nivel"])
}

func TestExportCSV(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []backendtest.Option
	}{
		{"quoted", nil},
		{"raw", []backendtest.Option{backendtest.WithRawCSV()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			backend, _, svc := setup(t, "admin", tc.opts...)
			backend.SeedAssessment("maria", 16, time.Now())

			var buf bytes.Buffer
			require.NoError(t, svc.Export(context.Background(), FormatCSV, &buf))

			records, err := csv.NewReader(&buf).ReadAll()
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "Usuário", records[0][1])
			assert.Equal(t, []string{"maria", "16", "Grave"}, records[1][1:4])
		})
	}
}

func TestUnquoteCSV(t *testing.T) {
	assert.Equal(t, "a,b\n1,2\n", string(unquoteCSV([]byte(`"a,b\n1,2\n"`))))
	assert.Equal(t, "a,b\n", string(unquoteCSV([]byte("a,b\n"))))
	assert.Equal(t, `"broken`, string(unquoteCSV([]byte(`"broken`))))
}
