package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "svc-importer",
		"exp":    exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestTokenSourceReturnsValidToken(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	ts := NewTokenSource("http://auth.invalid", Credentials{Token: token, RefreshToken: "r1"}, time.Second, zerolog.Nop())

	got, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got != token {
		t.Fatal("expected the seeded token back without a refresh")
	}
}

func TestTokenSourceRefreshesExpiringToken(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))
	var refreshCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/refresh" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refreshToken"] != "r1" {
			t.Errorf("unexpected refresh token %q", body["refreshToken"])
		}
		refreshCalls++
		_ = json.NewEncoder(w).Encode(map[string]string{"token": fresh, "refreshToken": "r2"})
	}))
	defer srv.Close()

	expiring := signedToken(t, time.Now().Add(30*time.Second))
	ts := NewTokenSource(srv.URL, Credentials{Token: expiring, RefreshToken: "r1"}, time.Second, zerolog.Nop())

	got, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got != fresh {
		t.Fatal("expected refreshed token")
	}
	if refreshCalls != 1 {
		t.Fatalf("expected 1 refresh call, got %d", refreshCalls)
	}
	// Second call serves the refreshed token from memory.
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("second token: %v", err)
	}
	if refreshCalls != 1 {
		t.Fatalf("expected cached token, got %d refresh calls", refreshCalls)
	}
}

func TestTokenSourceNoRefreshToken(t *testing.T) {
	ts := NewTokenSource("http://auth.invalid", Credentials{}, time.Second, zerolog.Nop())
	if _, err := ts.Token(context.Background()); err == nil {
		t.Fatal("expected error with no token and no refresh token")
	}
}

func TestPatientsFindByInsuranceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewPatientsClient(srv.URL, srv.URL, time.Second, nil, zerolog.Nop())
	id, err := c.FindByInsurance(context.Background(), "77001")
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}

func TestPatientsFindByInsuranceUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/patients/insurance/77001" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"pat-9"},"id":"outer"}`))
	}))
	defer srv.Close()

	c := NewPatientsClient(srv.URL, srv.URL, time.Second, nil, zerolog.Nop())
	id, err := c.FindByInsurance(context.Background(), "77001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if id != "pat-9" {
		t.Fatalf("expected nested data id to win, got %q", id)
	}
}

func TestPatientsCreateFromGuideNormalization(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/patients/from-xml" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"id":42}`))
	}))
	defer srv.Close()

	c := NewPatientsClient(srv.URL, srv.URL, time.Second, nil, zerolog.Nop())
	id, err := c.CreateFromGuide(context.Background(), PatientSeed{
		InsuranceNumber: "77001",
		FullName:        "MARIA DA SILVA",
		BirthDate:       "1980-05-20",
		Gender:          "F",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "42" {
		t.Fatalf("numeric id must coerce to string, got %q", id)
	}
	if payload["firstName"] != "MARIA" || payload["lastName"] != "DA SILVA" {
		t.Fatalf("name split: %v %v", payload["firstName"], payload["lastName"])
	}
	if payload["gender"] != "FEMALE" {
		t.Fatalf("gender: %v", payload["gender"])
	}
	if payload["birthDate"] != "1980-05-20T00:00:00Z" {
		t.Fatalf("birth date: %v", payload["birthDate"])
	}
	cpf, _ := payload["cpf"].(string)
	if len(cpf) != 11 {
		t.Fatalf("expected 11-digit placeholder cpf, got %q", cpf)
	}
}

func TestNormalizeGender(t *testing.T) {
	cases := map[string]string{"F": "FEMALE", "female": "FEMALE", "M": "MALE", "male": "MALE", "": "OTHER", "X": "OTHER"}
	for in, want := range cases {
		if got := normalizeGender(in); got != want {
			t.Errorf("normalizeGender(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProceduresValidatePorte(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["procedureCode"] != "31005497" || body["reportedPorte"] != "00" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = w.Write([]byte(`{"isValid":false,"expectedPorte":"01","reportedPorte":"00","severity":"MEDIA"}`))
	}))
	defer srv.Close()

	c := NewProceduresClient(srv.URL, srv.URL, time.Second, nil, zerolog.Nop())
	v, err := c.ValidatePorte(context.Background(), "31005497", "00")
	if err != nil {
		t.Fatalf("validate porte: %v", err)
	}
	if v.IsValid || v.ExpectedPorte != "01" {
		t.Fatalf("unexpected validation %+v", v)
	}
}

func TestProceduresCreateAndDelete(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/procedures":
			_, _ = w.Write([]byte(`{"data":{"id":"proc-1"}}`))
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewProceduresClient(srv.URL, srv.URL, time.Second, nil, zerolog.Nop())
	id, err := c.Create(context.Background(), ProcedureCreate{Code: "31005497", Quantity: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "proc-1" {
		t.Fatalf("id: %q", id)
	}
	if err := c.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != "/procedures/proc-1" {
		t.Fatalf("delete path: %q", deleted)
	}
}

func TestContractsValidateProcedure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"conforme":false,"divergencias":[{"tipo":"VALOR_EXCEDIDO","mensagem":"acima do contrato","severidade":"ALTA"}],"valorContrato":900,"valorCobrado":1200,"diferenca":300}`))
	}))
	defer srv.Close()

	c := NewContractsClient(srv.URL, srv.URL, time.Second, zerolog.Nop())
	v, err := c.ValidateProcedure(context.Background(), ContractValidationRequest{OperatorID: "op-1", TUSSCode: "31005497", ChargedValue: 1200})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Conforming || len(v.Divergences) != 1 || v.Difference != 300 {
		t.Fatalf("unexpected validation %+v", v)
	}
}

func TestContractsValidateProcedureUnreachable(t *testing.T) {
	c := NewContractsClient("http://127.0.0.1:1", "http://127.0.0.1:1", 200*time.Millisecond, zerolog.Nop())
	if _, err := c.ValidateProcedure(context.Background(), ContractValidationRequest{TUSSCode: "101"}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestAuditValidateGuide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audits/guias/validate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"procedimentosValidados":3,"totalPendencias":1}}`))
	}))
	defer srv.Close()

	c := NewAuditClient(srv.URL, time.Second, zerolog.Nop())
	v, err := c.ValidateGuide(context.Background(), "guide-1", "op-1")
	if err != nil {
		t.Fatalf("validate guide: %v", err)
	}
	if !v.Success || v.Data.ValidatedProcedures != 3 || v.Data.PendingIssues != 1 {
		t.Fatalf("unexpected validation %+v", v)
	}
}

func TestHTTPClientBearerToken(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+token {
			t.Errorf("authorization header: %q", got)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ts := NewTokenSource("http://auth.invalid", Credentials{Token: token, RefreshToken: "r"}, time.Second, zerolog.Nop())
	c := newHTTPClient(srv.URL, time.Second, ts, zerolog.Nop())
	if err := c.get(context.Background(), "/anything", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
}
