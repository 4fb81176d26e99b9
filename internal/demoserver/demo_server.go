package demoserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Coin is a token created through the sandbox form.
type Coin struct {
	Name            string    `json:"name"`
	Ticker          string    `json:"ticker"`
	Description     string    `json:"description"`
	Image           string    `json:"image"`
	Website         string    `json:"website,omitempty"`
	Twitter         string    `json:"twitter,omitempty"`
	Telegram        string    `json:"telegram,omitempty"`
	Amount          string    `json:"amount"`
	TransactionHash string    `json:"transaction_hash"`
	CreatedAt       time.Time `json:"created_at"`
	Promotions      int       `json:"promotions"`
}

// DemoServer is a local stand-in for the launchpad: a create form that needs
// two clicks to submit, plus a mock of the coin management API.
type DemoServer struct {
	cfg      Config
	pages    map[string]PageDefinition
	versions map[string]int // path -> current version
	coins    map[string]*Coin
	mu       sync.RWMutex
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	if cfg.InitialVersion == 0 {
		cfg.InitialVersion = 1
	}
	pages := GetAllPages()
	pageMap := make(map[string]PageDefinition)
	versions := make(map[string]int)

	for _, p := range pages {
		pageMap[p.Path] = p
		versions[p.Path] = cfg.InitialVersion
	}

	return &DemoServer{
		cfg:      cfg,
		pages:    pageMap,
		versions: versions,
		coins:    make(map[string]*Coin),
	}
}

// Handler returns the demo server's routes.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register page handlers
	for path := range s.pages {
		p := path // capture for closure
		mux.HandleFunc(p, s.pageHandler(p))
	}

	// Form backend
	mux.HandleFunc("POST /api/create", s.createHandler)
	mux.HandleFunc("GET /api/coins", s.listCoinsHandler)

	// Mock coin management API
	mux.HandleFunc("PUT /coins/{ticker}", s.requireKey(s.updateCoinHandler))
	mux.HandleFunc("GET /coins/{ticker}/stats", s.requireKey(s.coinStatsHandler))
	mux.HandleFunc("POST /coins/{ticker}/promote", s.requireKey(s.promoteCoinHandler))

	// Control panel for layout switching
	mux.HandleFunc("/demo/control", s.controlPanelHandler)
	mux.HandleFunc("/demo/set-version", s.setVersionHandler)
	mux.HandleFunc("/demo/get-versions", s.getVersionsHandler)
	mux.HandleFunc("/demo/reset", s.resetVersionsHandler)

	return mux
}

// Start starts the demo server.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo server starting on http://localhost%s\n", addr)
	fmt.Printf("Create page at http://localhost%s/create\n", addr)
	fmt.Printf("Control panel at http://localhost%s/demo/control\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Coins returns the created coins ordered by creation time.
func (s *DemoServer) Coins() []Coin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Coin, 0, len(s.coins))
	for _, c := range s.coins {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// pageHandler returns a handler for a specific page path.
func (s *DemoServer) pageHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		s.mu.RLock()
		pageDef, ok := s.pages[path]
		version := s.versions[path]
		s.mu.RUnlock()

		if !ok {
			http.NotFound(w, r)
			return
		}

		// Get the specific version, fall back to closest available
		pageVersion, ok := pageDef.Versions[version]
		if !ok {
			for v := version; v >= 1; v-- {
				if pv, exists := pageDef.Versions[v]; exists {
					pageVersion = pv
					break
				}
			}
		}

		for k, v := range pageVersion.Headers {
			w.Header().Set(k, v)
		}
		contentType := pageVersion.ContentType
		if contentType == "" {
			contentType = "text/html; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(pageVersion.HTML))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newTransactionHash() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// createHandler accepts the form submitted by the create page.
func (s *DemoServer) createHandler(w http.ResponseWriter, r *http.Request) {
	var c Coin
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	c.Ticker = strings.ToUpper(strings.TrimSpace(c.Ticker))
	var missing []string
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, "name")
	}
	if c.Ticker == "" {
		missing = append(missing, "ticker")
	}
	if c.Image == "" {
		missing = append(missing, "image")
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "missing "+strings.Join(missing, ", "))
		return
	}
	if _, err := strconv.ParseFloat(c.Amount, 64); err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a number")
		return
	}

	s.mu.Lock()
	if _, exists := s.coins[c.Ticker]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "ticker already taken")
		return
	}
	c.TransactionHash = newTransactionHash()
	c.CreatedAt = time.Now().UTC()
	s.coins[c.Ticker] = &c
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"transaction_hash": c.TransactionHash})
}

func (s *DemoServer) listCoinsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Coins())
}

func (s *DemoServer) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}

func (s *DemoServer) updateCoinHandler(w http.ResponseWriter, r *http.Request) {
	var details struct {
		Description string `json:"description"`
		Website     string `json:"website"`
		Twitter     string `json:"twitter"`
		Telegram    string `json:"telegram"`
	}
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ticker := strings.ToUpper(r.PathValue("ticker"))

	s.mu.Lock()
	c, ok := s.coins[ticker]
	if ok {
		if details.Description != "" {
			c.Description = details.Description
		}
		if details.Website != "" {
			c.Website = details.Website
		}
		if details.Twitter != "" {
			c.Twitter = details.Twitter
		}
		if details.Telegram != "" {
			c.Telegram = details.Telegram
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "coin not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true, "ticker": ticker})
}

func (s *DemoServer) coinStatsHandler(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(r.PathValue("ticker"))
	s.mu.RLock()
	c, ok := s.coins[ticker]
	var stats map[string]any
	if ok {
		stats = map[string]any{
			"ticker":     c.Ticker,
			"holders":    1 + c.Promotions*3,
			"market_cap": 4200 + c.Promotions*1000,
			"created_at": c.CreatedAt,
		}
	}
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "coin not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *DemoServer) promoteCoinHandler(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(r.PathValue("ticker"))
	s.mu.Lock()
	c, ok := s.coins[ticker]
	promotions := 0
	if ok {
		c.Promotions++
		promotions = c.Promotions
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "coin not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"promoted": true, "promotions": promotions})
}

// controlPanelHandler serves the control panel for layout management.
func (s *DemoServer) controlPanelHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl := template.Must(template.New("control").Parse(controlPanelHTML))
	data := struct {
		Pages    map[string]PageDefinition
		Versions map[string]int
		Port     int
	}{
		Pages:    s.pages,
		Versions: s.versions,
		Port:     s.cfg.Port,
	}
	w.Header().Set("Content-Type", "text/html")
	_ = tmpl.Execute(w, data)
}

// setVersionHandler sets the version for a specific page.
func (s *DemoServer) setVersionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := r.FormValue("path")
	versionStr := r.FormValue("version")

	version, err := strconv.Atoi(versionStr)
	if err != nil {
		http.Error(w, "Invalid version number", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, ok := s.pages[path]
	if ok {
		s.versions[path] = version
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": ok,
		"path":    path,
		"version": version,
	})
}

// getVersionsHandler returns the current versions of all pages.
func (s *DemoServer) getVersionsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type PageInfo struct {
		Path              string `json:"path"`
		Description       string `json:"description"`
		CurrentVersion    int    `json:"current_version"`
		AvailableVersions []int  `json:"available_versions"`
	}

	var pages []PageInfo
	for path, pageDef := range s.pages {
		var versions []int
		for v := range pageDef.Versions {
			versions = append(versions, v)
		}
		sort.Ints(versions)
		pages = append(pages, PageInfo{
			Path:              path,
			Description:       pageDef.Description,
			CurrentVersion:    s.versions[path],
			AvailableVersions: versions,
		})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Path < pages[j].Path })

	writeJSON(w, http.StatusOK, pages)
}

// resetVersionsHandler resets all pages to version 1 and forgets created coins.
func (s *DemoServer) resetVersionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	for path := range s.versions {
		s.versions[path] = 1
	}
	s.coins = make(map[string]*Coin)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All layouts reset to v1",
	})
}

const controlPanelHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Demo Server Control Panel</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; max-width: 1200px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        h1 { color: #333; border-bottom: 2px solid #007bff; padding-bottom: 10px; }
        .page-card { background: white; border-radius: 8px; padding: 20px; margin: 15px 0; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .page-header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 10px; }
        .page-path { font-size: 1.2em; font-weight: bold; color: #007bff; text-decoration: none; }
        .page-path:hover { text-decoration: underline; }
        .page-desc { color: #666; margin: 5px 0; }
        .version-controls { display: flex; gap: 10px; align-items: center; margin-top: 10px; }
        .version-btn { padding: 8px 16px; border: none; border-radius: 4px; cursor: pointer; font-size: 14px; }
        .version-btn:hover { opacity: 0.9; }
        .version-btn.active { background: #007bff; color: white; }
        .version-btn.inactive { background: #e9ecef; color: #333; }
        .current-version { font-weight: bold; color: #28a745; }
        .global-controls { background: #fff3cd; padding: 20px; border-radius: 8px; margin-bottom: 20px; }
        .global-controls h2 { margin-top: 0; color: #856404; }
        .global-btn { padding: 10px 20px; margin-right: 10px; border: none; border-radius: 4px; cursor: pointer; font-size: 14px; }
        .reset-btn { background: #dc3545; color: white; }
        .status { margin-top: 10px; padding: 10px; border-radius: 4px; display: none; }
        .status.success { background: #d4edda; color: #155724; display: block; }
        .status.error { background: #f8d7da; color: #721c24; display: block; }
        .info-box { background: #e7f3ff; padding: 15px; border-radius: 8px; margin-bottom: 20px; border-left: 4px solid #007bff; }
    </style>
</head>
<body>
    <h1>Demo Server Control Panel</h1>
    
    <div class="info-box">
        <strong>How to use:</strong> Switch the create page layout to rehearse a launch against a working
        or a broken confirmation dialog. Launched coins are listed at <a href="/api/coins">/api/coins</a>.
    </div>
    
    <div class="global-controls">
        <h2>Global Controls</h2>
        <button class="global-btn reset-btn" onclick="resetAllVersions()">Reset All to v1</button>
        <div id="global-status" class="status"></div>
    </div>
    
    <h2>Pages</h2>
    {{range $path, $page := .Pages}}
    <div class="page-card">
        <div class="page-header">
            <a href="{{$path}}" target="_blank" class="page-path">{{$path}}</a>
            <span class="current-version">Current: v{{index $.Versions $path}}</span>
        </div>
        <div class="page-desc">{{$page.Description}}</div>
        <div class="version-controls">
            <span>Set version:</span>
            {{range $v, $_ := $page.Versions}}
            <button class="version-btn {{if eq (index $.Versions $path) $v}}active{{else}}inactive{{end}}" 
                    onclick="setVersion('{{$path}}', {{$v}}, this)">
                v{{$v}}
            </button>
            {{end}}
        </div>
    </div>
    {{end}}
    
    <script>
        function setVersion(path, version, btn) {
            fetch('/demo/set-version', {
                method: 'POST',
                headers: {'Content-Type': 'application/x-www-form-urlencoded'},
                body: 'path=' + encodeURIComponent(path) + '&version=' + version
            })
            .then(r => r.json())
            .then(data => {
                if (data.success) {
                    // Update button states
                    const card = btn.closest('.page-card');
                    card.querySelectorAll('.version-btn').forEach(b => {
                        b.classList.remove('active');
                        b.classList.add('inactive');
                    });
                    btn.classList.remove('inactive');
                    btn.classList.add('active');
                    card.querySelector('.current-version').textContent = 'Current: v' + version;
                }
            });
        }
        
        function resetAllVersions() {
            fetch('/demo/reset', {method: 'POST'})
            .then(r => r.json())
            .then(data => {
                showGlobalStatus(data.success, data.message);
                if (data.success) location.reload();
            });
        }
        
        function showGlobalStatus(success, message) {
            const el = document.getElementById('global-status');
            el.textContent = message;
            el.className = 'status ' + (success ? 'success' : 'error');
        }
    </script>
</body>
</html>`
