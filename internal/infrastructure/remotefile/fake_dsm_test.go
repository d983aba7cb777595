package remotefile

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
)

// fakeDSM emulates the subset of the DSM WebAPI the client uses. Files live
// in memory keyed by full path; directories are implied by their entries
// plus explicitly created folders.
type fakeDSM struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	password   string
	nextSID    int
	sessions   map[string]bool
	logins     int
	logouts    []string
	files      map[string][]byte
	dirs       map[string]bool
	calls      []string
	loginDelay time.Duration
	// authStatus, when set, is returned by auth.cgi instead of a WebAPI answer.
	authStatus int
	// override replaces the answer of one "api method" pair.
	override map[string]http.HandlerFunc
	// statusPolls is the number of CopyMove status calls before finished.
	statusPolls int
	tasks       map[string]int
	uploadLen   int64
}

func newFakeDSM(t *testing.T) *fakeDSM {
	f := &fakeDSM{
		t:        t,
		password: "s3cret-password",
		sessions: map[string]bool{},
		files:    map[string][]byte{},
		dirs:     map[string]bool{},
		override: map[string]http.HandlerFunc{},
		tasks:    map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/webapi/auth.cgi", f.auth)
	mux.HandleFunc("/webapi/entry.cgi", f.entry)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDSM) config() *infraconfig.RemoteFileConfig {
	return &infraconfig.RemoteFileConfig{
		BaseURL:          f.server.URL,
		BasePath:         "/data/documents",
		Username:         "docs",
		Password:         f.password,
		SessionName:      "FileStation",
		ConnectTimeout:   time.Second,
		MaxDuration:      2 * time.Second,
		SessionTTL:       time.Minute,
		MovePollInterval: time.Millisecond,
	}
}

func (f *fakeDSM) transport(t *testing.T, cfg *infraconfig.RemoteFileConfig, opts ...Option) *Transport {
	opts = append([]Option{WithTempDir(t.TempDir())}, opts...)
	tr, err := NewTransport(cfg, opts...)
	require.NoError(t, err)
	return tr
}

func (f *fakeDSM) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeDSM) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDSM) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeDSM) logoutLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logouts...)
}

func (f *fakeDSM) put(full string, data []byte) {
	f.mu.Lock()
	f.files[full] = data
	f.mu.Unlock()
}

func (f *fakeDSM) file(full string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[full]
	return data, ok
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{"success": true}
	if data != nil {
		body["data"] = data
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeFail(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": map[string]int{"code": code}})
}

func (f *fakeDSM) auth(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := r.Form.Get("method")
	f.record("auth " + method)

	if h := f.override["auth "+method]; h != nil {
		h(w, r)
		return
	}
	if f.authStatus != 0 {
		http.Error(w, "unauthorized", f.authStatus)
		return
	}

	switch method {
	case "login":
		if f.loginDelay > 0 {
			time.Sleep(f.loginDelay)
		}
		if r.Method != http.MethodPost || r.URL.Query().Get("passwd") != "" {
			writeFail(w, 101)
			return
		}
		if r.PostForm.Get("account") != "docs" || r.PostForm.Get("passwd") != f.password {
			writeFail(w, 400)
			return
		}
		f.mu.Lock()
		f.logins++
		f.nextSID++
		sid := fmt.Sprintf("sid-%04d-abcdefghijklmnop", f.nextSID)
		f.sessions[sid] = true
		f.mu.Unlock()
		writeOK(w, map[string]string{"sid": sid})
	case "logout":
		sid := r.URL.Query().Get("_sid")
		f.mu.Lock()
		f.logouts = append(f.logouts, sid)
		known := f.sessions[sid]
		delete(f.sessions, sid)
		f.mu.Unlock()
		if !known {
			writeFail(w, 119)
			return
		}
		writeOK(w, nil)
	default:
		writeFail(w, 103)
	}
}

func (f *fakeDSM) entry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("api") + " " + q.Get("method")
	f.record(key)

	if h := f.override[key]; h != nil {
		h(w, r)
		return
	}

	f.mu.Lock()
	live := f.sessions[q.Get("_sid")]
	f.mu.Unlock()
	if !live {
		writeFail(w, 119)
		return
	}

	switch key {
	case apiUpload + " upload":
		f.upload(w, r)
	case apiDownload + " download":
		data, ok := f.file(q.Get("path"))
		if !ok {
			writeFail(w, 408)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	case apiCreateFolder + " create":
		f.mu.Lock()
		f.dirs[path.Join(q.Get("folder_path"), q.Get("name"))] = true
		f.mu.Unlock()
		writeOK(w, nil)
	case apiCopyMove + " start":
		f.startMove(w, q.Get("path"), q.Get("dest_folder_path"))
	case apiCopyMove + " status":
		f.mu.Lock()
		f.tasks[q.Get("taskid")]++
		done := f.tasks[q.Get("taskid")] > f.statusPolls
		f.mu.Unlock()
		writeOK(w, map[string]any{"finished": done})
	case apiRename + " rename":
		f.rename(w, q.Get("path"), q.Get("name"))
	case apiList + " list":
		f.list(w, q)
	default:
		writeFail(w, 103)
	}
}

func (f *fakeDSM) upload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("create_parents") != "true" || q.Get("overwrite") != "true" {
		writeFail(w, 101)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeFail(w, 101)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	f.mu.Lock()
	f.uploadLen = r.ContentLength
	f.files[path.Join(q.Get("path"), header.Filename)] = data
	f.mu.Unlock()
	writeOK(w, nil)
}

// relocate renames every file at or under from to the same place under to.
// Caller holds mu.
func (f *fakeDSM) relocate(from, to string) bool {
	var matched []string
	for p := range f.files {
		if p == from || strings.HasPrefix(p, from+"/") {
			matched = append(matched, p)
		}
	}
	for _, p := range matched {
		data := f.files[p]
		delete(f.files, p)
		f.files[to+strings.TrimPrefix(p, from)] = data
	}
	return len(matched) > 0
}

func (f *fakeDSM) startMove(w http.ResponseWriter, src, destDir string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.relocate(src, path.Join(destDir, path.Base(src))) {
		writeFail(w, 408)
		return
	}
	taskID := "FileStation_" + strconv.Itoa(len(f.tasks)+1)
	f.tasks[taskID] = 0
	writeOK(w, map[string]string{"taskid": taskID})
}

func (f *fakeDSM) rename(w http.ResponseWriter, from, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.relocate(from, path.Join(path.Dir(from), name)) {
		writeFail(w, 408)
		return
	}
	writeOK(w, nil)
}

func (f *fakeDSM) list(w http.ResponseWriter, q map[string][]string) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	dir := get("folder_path")
	offset, _ := strconv.Atoi(get("offset"))
	limit, _ := strconv.Atoi(get("limit"))

	f.mu.Lock()
	seen := map[string]bool{}
	var names []string
	isDir := map[string]bool{}
	size := map[string]int{}
	for p, data := range f.files {
		if !strings.HasPrefix(p, dir+"/") {
			continue
		}
		rest := strings.TrimPrefix(p, dir+"/")
		name, _, nested := strings.Cut(rest, "/")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		if nested {
			isDir[name] = true
		} else {
			size[name] = len(data)
		}
	}
	f.mu.Unlock()

	if len(names) == 0 {
		writeFail(w, 408)
		return
	}
	sort.Strings(names)

	// Pages of two exercise the offset loop.
	if limit <= 0 || limit > 2 {
		limit = 2
	}
	end := min(offset+limit, len(names))
	var files []map[string]any
	for _, n := range names[offset:end] {
		files = append(files, map[string]any{
			"name":  n,
			"path":  path.Join(dir, n),
			"isdir": isDir[n],
			"additional": map[string]any{
				"size": size[n],
				"time": map[string]int64{"mtime": 1735689600},
			},
		})
	}
	writeOK(w, map[string]any{"total": len(names), "offset": offset, "files": files})
}
