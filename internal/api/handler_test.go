package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"texResume/internal/database"
	"texResume/internal/latex"
	"texResume/internal/resume"
	"texResume/internal/tasks"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task-" + strconv.Itoa(len(e.tasks))}, nil
}

type fakeStorage struct {
	deleted []string
}

func (s *fakeStorage) PresignedDownloadURL(_ context.Context, objectKey, filename string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey + "?name=" + filename, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	return nil
}

type testEnv struct {
	router   *gin.Engine
	service  *resume.Service
	enqueuer *fakeEnqueuer
	storage  *fakeStorage
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&database.User{Username: "alice"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := resume.NewService(db, nil)
	renderer := latex.NewRenderer(latex.DefaultTemplate())
	enqueuer := &fakeEnqueuer{}
	store := &fakeStorage{}

	blocks := NewBlockHandler(service, logger)
	resumes := NewResumeHandler(service, renderer, enqueuer, store, logger)
	render := NewRenderHandler(renderer, logger)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", uint(1))
		c.Next()
	})
	router.GET("/v1/blocks", blocks.ListBlocks)
	router.POST("/v1/blocks", blocks.AppendBlock)
	router.PUT("/v1/blocks", blocks.SyncCanvas)
	router.POST("/v1/blocks/reorder", blocks.ReorderBlocks)
	router.PATCH("/v1/blocks/:id", blocks.UpdateBlock)
	router.DELETE("/v1/blocks/:id", blocks.DeleteBlock)
	router.GET("/v1/library", blocks.Library)
	router.POST("/v1/render", render.Render)
	router.POST("/v1/resumes", resumes.CreateResume)
	router.GET("/v1/resumes/:id", resumes.GetResume)
	router.PUT("/v1/resumes/:id", resumes.UpdateResume)
	router.DELETE("/v1/resumes/:id", resumes.DeleteResume)
	router.GET("/v1/resumes/:id/blocks", resumes.ResumeBlocks)
	router.POST("/v1/resumes/:id/blocks", resumes.AppendBlockToResume)
	router.GET("/v1/resumes/:id/latex", resumes.ResumeLatex)
	router.POST("/v1/resumes/:id/export", resumes.ExportResume)
	router.GET("/v1/resumes/:id/download-link", resumes.GetDownloadLink)

	return &testEnv{router: router, service: service, enqueuer: enqueuer, storage: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBlock(t *testing.T, w *httptest.ResponseRecorder) resume.Block {
	t.Helper()
	var b resume.Block
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode block: %v body=%s", err, w.Body.String())
	}
	return b
}

const experienceJSON = `{"client_id":"exp-1","section_kind":"Experience","order":0,
	"fields":{"organization":"Acme","duration":"2020","role":"Engineer","bullets":["Did X"]}}`

func TestAppendBlockAndDuplicate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/blocks", experienceJSON)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	if b := decodeBlock(t, w); b.StorageID == "" {
		t.Fatalf("storage id missing")
	}

	w = env.do(t, http.MethodPost, "/v1/blocks", experienceJSON)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestAppendBlockRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]string{
		"unknown kind":  `{"client_id":"a","section_kind":"Awards"}`,
		"missing kind":  `{"client_id":"a"}`,
		"foreign field": `{"client_id":"a","section_kind":"Header","fields":{"bullets":[]}}`,
		"not json":      `{`,
	}
	for name, body := range cases {
		if w := env.do(t, http.MethodPost, "/v1/blocks", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400 got %d body=%s", name, w.Code, w.Body.String())
		}
	}
}

func TestUpdateAndDeleteBlock(t *testing.T) {
	env := newTestEnv(t)
	stored := decodeBlock(t, env.do(t, http.MethodPost, "/v1/blocks", experienceJSON))

	w := env.do(t, http.MethodPatch, "/v1/blocks/"+stored.StorageID, `{"duration":"2020-2021"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	updated := decodeBlock(t, w).Fields.(resume.ExperienceFields)
	if updated.Duration != "2020-2021" || updated.Role != "Engineer" || len(updated.Bullets) != 1 {
		t.Fatalf("unexpected fields %+v", updated)
	}

	w = env.do(t, http.MethodPatch, "/v1/blocks/exp-1?ref=client", `{"role":"Lead"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	if w := env.do(t, http.MethodPatch, "/v1/blocks/missing", `{"role":"Lead"}`); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}

	if w := env.do(t, http.MethodDelete, "/v1/blocks/"+stored.StorageID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d body=%s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodDelete, "/v1/blocks/"+stored.StorageID, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete got %d", w.Code)
	}
}

func TestSyncReorderAndList(t *testing.T) {
	env := newTestEnv(t)

	body := `{"blocks":[
		{"client_id":"head","section_kind":"Header","fields":{"full_name":"Ada"}},
		{"client_id":"skills","section_kind":"Technical Skills","fields":{"languages":"Go"}}
	]}`
	w := env.do(t, http.MethodPut, "/v1/blocks", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var synced blockListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &synced); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(synced.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(synced.Blocks))
	}

	order := `{"storage_ids":["` + synced.Blocks[1].StorageID + `","` + synced.Blocks[0].StorageID + `"]}`
	if w := env.do(t, http.MethodPost, "/v1/blocks/reorder", order); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/v1/blocks", "")
	var listed blockListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Blocks) != 2 || listed.Blocks[0].ClientID != "skills" {
		t.Fatalf("unexpected order %+v", listed.Blocks)
	}

	if w := env.do(t, http.MethodPost, "/v1/blocks/reorder", `{"storage_ids":["nope"]}`); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}

func TestSyncKeepsUnsentFields(t *testing.T) {
	env := newTestEnv(t)

	first := `{"blocks":[{"client_id":"head","section_kind":"Header","fields":{"full_name":"Ada","phone":"555"}}]}`
	if w := env.do(t, http.MethodPut, "/v1/blocks", first); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	second := `{"blocks":[{"client_id":"head","section_kind":"Header","fields":{"email":"ada@example.com"}}]}`
	w := env.do(t, http.MethodPut, "/v1/blocks", second)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var synced blockListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &synced); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := resume.HeaderFields{FullName: "Ada", Phone: "555", Email: "ada@example.com"}
	if len(synced.Blocks) != 1 || synced.Blocks[0].Fields != want {
		t.Fatalf("unexpected synced blocks %+v", synced.Blocks)
	}

	bad := `{"blocks":[{"client_id":"head","section_kind":"Header","fields":{"degree":"BSc"}}]}`
	w = env.do(t, http.MethodPut, "/v1/blocks", bad)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "full_name") {
		t.Fatalf("expected 400 listing allowed keys, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestLibrary(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/v1/library", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "template-header") {
		t.Fatalf("unexpected library response %d %s", w.Code, w.Body.String())
	}
}

func TestRenderEndpoint(t *testing.T) {
	env := newTestEnv(t)
	body := `{"blocks":[{"client_id":"h","section_kind":"Header","fields":{"full_name":"Ada & Co"}}]}`
	w := env.do(t, http.MethodPost, "/v1/render", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/x-tex") {
		t.Fatalf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), `Ada \& Co`) {
		t.Fatalf("escaped name missing")
	}
}

func createResume(t *testing.T, env *testEnv, body string) resumeResponse {
	t.Helper()
	w := env.do(t, http.MethodPost, "/v1/resumes", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	var r resumeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode resume: %v", err)
	}
	return r
}

func TestResumeLifecycle(t *testing.T) {
	env := newTestEnv(t)
	stored := decodeBlock(t, env.do(t, http.MethodPost, "/v1/blocks", experienceJSON))

	r := createResume(t, env, `{"name":"Backend","member_block_ids":["`+stored.StorageID+`"]}`)
	base := "/v1/resumes/" + strconv.Itoa(int(r.ID))

	w := env.do(t, http.MethodPost, base+"/blocks",
		`{"client_id":"head","section_kind":"Header","fields":{"full_name":"Ada Lovelace"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("append to resume: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, base+"/blocks", "")
	var resolved blockListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resolved.Blocks) != 2 || resolved.Blocks[0].StorageID != stored.StorageID {
		t.Fatalf("unexpected resolved blocks %+v", resolved.Blocks)
	}

	w = env.do(t, http.MethodGet, base+"/latex", "")
	if w.Code != http.StatusOK {
		t.Fatalf("latex: %d %s", w.Code, w.Body.String())
	}
	doc := w.Body.String()
	if strings.Index(doc, "Ada Lovelace") > strings.Index(doc, `\section{Experience}`) {
		t.Fatalf("header must precede sections")
	}

	w = env.do(t, http.MethodPut, base, `{"name":"Renamed","member_block_ids":[]}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"member_block_ids":[]`) {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}

	if w := env.do(t, http.MethodPut, base, `{"name":"","member_block_ids":[]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty name got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/v1/resumes/abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/v1/resumes/999", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}

	if w := env.do(t, http.MethodDelete, base, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodGet, "/v1/blocks", ""); !strings.Contains(w.Body.String(), stored.StorageID) {
		t.Fatalf("blocks must survive resume deletion")
	}
}

func TestExportAndDownloadLink(t *testing.T) {
	env := newTestEnv(t)
	r := createResume(t, env, `{"name":"Backend"}`)
	base := "/v1/resumes/" + strconv.Itoa(int(r.ID))

	if w := env.do(t, http.MethodGet, base+"/download-link", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before export got %d", w.Code)
	}

	w := env.do(t, http.MethodPost, base+"/export", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d body=%s", w.Code, w.Body.String())
	}
	if len(env.enqueuer.tasks) != 1 || env.enqueuer.tasks[0].Type() != tasks.TypeLatexExport {
		t.Fatalf("export task not enqueued")
	}
	var payload tasks.LatexExportPayload
	if err := json.Unmarshal(env.enqueuer.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.UserID != 1 || payload.ResumeID != r.ID {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if err := env.service.SetExportResult(context.Background(), 1, r.ID, "exports/1/x.tex", resume.ExportCompleted); err != nil {
		t.Fatalf("set export result: %v", err)
	}
	w = env.do(t, http.MethodGet, base+"/download-link", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "exports/1/x.tex") {
		t.Fatalf("unexpected download link %d %s", w.Code, w.Body.String())
	}

	if w := env.do(t, http.MethodDelete, base, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if len(env.storage.deleted) != 1 || env.storage.deleted[0] != "exports/1/x.tex" {
		t.Fatalf("export object not removed: %v", env.storage.deleted)
	}
}
