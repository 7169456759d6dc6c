package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"odds-alert-service/config"
	"odds-alert-service/models"
	"odds-alert-service/services"
	"odds-alert-service/store"
)

type Server struct {
	config     *config.Config
	db         *sql.DB
	store      store.Store
	wsHub      *Hub
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg *config.Config, db *sql.DB, st store.Store, hub *Hub) *Server {
	return &Server{
		config: cfg,
		db:     db,
		store:  st,
		wsHub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源(生产环境需要限制)
			},
		},
	}
}

func (s *Server) Start() error {
	router := mux.NewRouter()

	// API路由
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/monitoring/status", s.handleMonitoringStatus).Methods("GET")
	api.HandleFunc("/alerts", s.handleGetAlerts).Methods("GET")
	api.HandleFunc("/alerts", s.handleCreateAlert).Methods("POST")
	api.HandleFunc("/alerts/{alert_id}", s.handleDeleteAlert).Methods("DELETE")
	api.HandleFunc("/events/{event_id}/odds", s.handleGetEventOdds).Methods("GET")
	api.HandleFunc("/leagues/{league_id}/events", s.handleGetLeagueEvents).Methods("GET")

	// WebSocket路由
	router.HandleFunc("/ws", s.handleWebSocket)

	// CORS配置
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := c.Handler(router)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// heartbeatAge 读取心跳键并换算成距今时长, 缺失或无法解析返回 nil
func (s *Server) heartbeatAge(ctx context.Context, key string, now time.Time) *time.Duration {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	age := now.Sub(at)
	return &age
}

// handleMonitoringStatus 聚合心跳/积压/存储连通性为单一健康裁决
func (s *Server) handleMonitoringStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	backlogs := make(map[string]int64)
	for _, stream := range []string{store.StreamOddsTicks, store.StreamNotificationJobs} {
		if length, err := s.store.XLen(ctx, stream); err == nil {
			backlogs[stream] = length
		}
	}

	signals := services.MonitoringSignals{
		IngestionHeartbeatAge: s.heartbeatAge(ctx, store.KeyHeartbeatIngestion, now),
		DiscoveryHeartbeatAge: s.heartbeatAge(ctx, store.KeyHeartbeatDiscovery, now),
		VendorUsageAge:        s.heartbeatAge(ctx, store.KeyVendorUsage, now),
		StorePingOK:           s.store.Ping(ctx) == nil,
		StreamBacklogs:        backlogs,
	}

	discoveryStale := 2 * time.Duration(s.config.DiscoveryIntervalSeconds) * time.Second
	thresholds := services.MonitoringThresholds{
		HeartbeatStale:   time.Duration(s.config.HeartbeatStaleSeconds) * time.Second,
		DiscoveryStale:   discoveryStale,
		VendorUsageStale: discoveryStale,
		BacklogWarn:      s.config.BacklogWarnThreshold,
	}

	ageSeconds := func(d *time.Duration) interface{} {
		if d == nil {
			return nil
		}
		return int64(d.Seconds())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": services.ComputeMonitoringStatus(signals, thresholds),
		"signals": map[string]interface{}{
			"ingestion_heartbeat_age_seconds": ageSeconds(signals.IngestionHeartbeatAge),
			"discovery_heartbeat_age_seconds": ageSeconds(signals.DiscoveryHeartbeatAge),
			"vendor_usage_age_seconds":        ageSeconds(signals.VendorUsageAge),
			"store_ping_ok":                   signals.StorePingOK,
			"stream_backlogs":                 backlogs,
		},
		"time": now.Unix(),
	})
}

// alertResponse API 返回的预警条目
type alertResponse struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	EventID      string   `json:"event_id"`
	OddID        string   `json:"odd_id"`
	BookmakerID  string   `json:"bookmaker_id"`
	Comparator   string   `json:"comparator"`
	TargetValue  float64  `json:"target_value"`
	TargetMetric string   `json:"target_metric"`
	TimeWindow   string   `json:"time_window"`
	OneShot      bool     `json:"one_shot"`
	Enabled      bool     `json:"enabled"`
	Channels     []string `json:"channels"`
	LastFiredAt  *string  `json:"last_fired_at,omitempty"`
}

// handleGetAlerts 按 user_id 查询预警规则
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, user_id, event_id, odd_id, bookmaker_id, comparator, target_value,
		       target_metric, time_window, one_shot, enabled, channels, last_fired_at
		FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	alerts := make([]alertResponse, 0)
	for rows.Next() {
		var a alertResponse
		var channels string
		var lastFiredAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.UserID, &a.EventID, &a.OddID, &a.BookmakerID,
			&a.Comparator, &a.TargetValue, &a.TargetMetric, &a.TimeWindow,
			&a.OneShot, &a.Enabled, &channels, &lastFiredAt); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if channels != "" {
			a.Channels = strings.Split(channels, ",")
		} else {
			a.Channels = []string{}
		}
		if lastFiredAt.Valid {
			formatted := lastFiredAt.Time.Format(time.RFC3339)
			a.LastFiredAt = &formatted
		}
		alerts = append(alerts, a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"alerts": alerts,
	})
}

// createAlertRequest 创建预警的请求体, direction 是 UI 方向字符串
type createAlertRequest struct {
	UserID            string   `json:"user_id"`
	EventID           string   `json:"event_id"`
	OddID             string   `json:"odd_id"`
	BookmakerID       string   `json:"bookmaker_id"`
	Direction         string   `json:"direction"`
	TargetValue       float64  `json:"target_value"`
	TargetMetric      string   `json:"target_metric"`
	TimeWindow        string   `json:"time_window"`
	OneShot           *bool    `json:"one_shot"`
	CooldownSeconds   int      `json:"cooldown_seconds"`
	AvailableRequired *bool    `json:"available_required"`
	Channels          []string `json:"channels"`
	RuleType          string   `json:"rule_type"`
	MarketType        string   `json:"market_type"`
	TeamSide          string   `json:"team_side"`
}

// handleCreateAlert 创建预警规则
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.EventID == "" || req.OddID == "" || req.BookmakerID == "" {
		http.Error(w, "user_id, event_id, odd_id and bookmaker_id are required", http.StatusBadRequest)
		return
	}

	oneShot := true
	if req.OneShot != nil {
		oneShot = *req.OneShot
	}
	availableRequired := true
	if req.AvailableRequired != nil {
		availableRequired = *req.AvailableRequired
	}
	metric := req.TargetMetric
	if metric == "" {
		metric = "odds_price"
	}
	window := req.TimeWindow
	if window == "" {
		window = "both"
	}

	alertID := uuid.New().String()
	_, err := s.db.ExecContext(r.Context(), `
		INSERT INTO alerts (id, user_id, event_id, odd_id, bookmaker_id, comparator,
		                    target_value, target_metric, time_window, one_shot,
		                    cooldown_seconds, available_required, channels,
		                    rule_type, market_type, team_side, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        NULLIF($14,''), NULLIF($15,''), NULLIF($16,''), TRUE)`,
		alertID, req.UserID, req.EventID, req.OddID, req.BookmakerID,
		models.ComparatorForDirection(req.Direction),
		req.TargetValue, metric, window, oneShot,
		req.CooldownSeconds, availableRequired, strings.Join(req.Channels, ","),
		req.RuleType, req.MarketType, req.TeamSide)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id": alertID,
	})
}

// handleDeleteAlert 删除预警规则
func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["alert_id"]

	result, err := s.db.ExecContext(r.Context(), `DELETE FROM alerts WHERE id = $1`, alertID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetEventOdds 返回赛事的当前状态和核心赔率快照
func (s *Server) handleGetEventOdds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID := mux.Vars(r)["event_id"]

	response := map[string]interface{}{
		"event_id": eventID,
	}

	if raw, err := s.store.Get(ctx, store.EventStatusKey(eventID)); err == nil {
		var status json.RawMessage = []byte(raw)
		response["status"] = status
	}
	if raw, err := s.store.Get(ctx, store.EventOddsCoreKey(eventID)); err == nil {
		var core json.RawMessage = []byte(raw)
		response["odds"] = core
	}

	books, err := s.store.SMembers(ctx, store.EventBooksKey(eventID))
	if err == nil {
		response["bookmakers"] = books
	}

	if response["status"] == nil && response["odds"] == nil {
		http.Error(w, "event not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGetLeagueEvents 返回联赛的进行中/未开赛赛事索引
func (s *Server) handleGetLeagueEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	leagueID := mux.Vars(r)["league_id"]

	live, err := s.store.SMembers(ctx, store.LeagueLiveIndexKey(leagueID))
	if err != nil {
		live = []string{}
	}
	upcoming, err := s.store.SMembers(ctx, store.LeagueUpcomingIndexKey(leagueID))
	if err != nil {
		upcoming = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"league_id": leagueID,
		"live":      live,
		"upcoming":  upcoming,
	})
}

// handleWebSocket WebSocket连接处理
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:      s.wsHub,
		conn:     conn,
		send:     make(chan []byte, 256),
		filters:  make(map[string]bool),
		eventIDs: make(map[string]bool),
	}

	client.hub.register <- client

	// 发送欢迎消息
	welcomeMsg := &WSMessage{
		Type: "connected",
		Data: map[string]interface{}{
			"message": "Connected to odds tick stream",
			"time":    time.Now().Unix(),
		},
	}
	welcomeData, _ := json.Marshal(welcomeMsg)
	client.send <- welcomeData

	go client.writePump()
	go client.readPump()
}
