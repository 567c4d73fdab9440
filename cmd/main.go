package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"dicematch/config"
	"dicematch/internal/auth"
	"dicematch/internal/liveness"
	"dicematch/internal/middleware"
	"dicematch/internal/pairing"
	"dicematch/internal/profile"
	"dicematch/internal/rules"
	"dicematch/internal/session"
	"dicematch/internal/storage"
	"dicematch/internal/sweeper"
	"dicematch/internal/utils"
	"dicematch/internal/websocket"
)

func main() {
	config.Load()
	utils.Init()
	utils.Print.Info("dicematch starting",
		"redis", config.C.Redis.Addr,
		"sweep", config.C.Match.SweepPeriod,
		"liveness", config.C.Match.LivenessWindow,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	//-------------------------------------------------------
	// 1. Redis (session store) + Postgres (player profiles)
	//-------------------------------------------------------
	if err := storage.InitRedis(
		config.C.Redis.Addr,
		config.C.Redis.Password,
		config.C.Redis.DB,
	); err != nil {
		utils.Error.Fatalf("Redis init failed: %v", err)
	}

	var profiles profile.Provider = profile.NewStaticProvider()
	if config.C.Database.DSN != "" {
		if err := storage.InitPostgres(config.C.Database.DSN); err != nil {
			utils.Error.Fatalf("Postgres init failed: %v", err)
		}
		profiles = profile.NewPGProvider(storage.DB)
	}

	//-------------------------------------------------------
	// 2. Core components
	//-------------------------------------------------------
	mc := config.C.Match
	store := session.NewRedisStore(storage.Rdb, mc.SessionTTL, nil)
	tracker := liveness.NewTracker(mc.LivenessWindow, nil)
	machine := session.NewMachine(store, tracker, nil)

	engine := pairing.NewEngine(store, machine, tracker, profiles, pairing.WideningPolicy{
		Base:     mc.BaseTolerance,
		Step:     mc.ToleranceStep,
		Interval: mc.ToleranceInterval,
	}, nil)

	sw := sweeper.New(store, machine, tracker, sweeper.Config{
		Period:      mc.SweepPeriod,
		ReadyWindow: mc.ReadyWindow,
		Grace:       mc.LivenessGrace,
		Retention:   mc.TerminalRetention,
	}, nil)
	go sw.Run(ctx)

	//-------------------------------------------------------
	// 3. Websocket hub + session change notifier
	//-------------------------------------------------------
	hub := websocket.NewHub()
	go hub.Run()

	notifier := websocket.NewNotifier(store, hub)
	engine.OnSession = notifier.Watch

	hub.OnIncoming = func(msg websocket.IncomingMessage) {
		if msg.Event == "heartbeat" {
			tracker.Heartbeat(msg.From, msg.SessionID)
		}
	}

	//-------------------------------------------------------
	// 4. HTTP surface
	//-------------------------------------------------------
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ah := auth.NewHandler()
	r.POST("/auth/login", ah.Login)

	// Result intake for the external rules engine.
	rh := rules.NewHandler(machine)
	r.POST("/internal/result", rh.ReportResult)

	secret := []byte(config.C.JWT.Secret)
	authed := r.Group("/", middleware.JwtAuthMiddleware(secret))
	{
		authed.GET("/ws", websocket.ServeWS(hub, tracker))

		ph := pairing.NewHandler(engine, tracker, store)
		authed.POST("/match/request", ph.RequestMatch)
		authed.POST("/match/ready", ph.MarkReady)
		authed.POST("/match/heartbeat", ph.Heartbeat)
		authed.POST("/match/leave", ph.Leave)
		authed.GET("/session/:id", ph.GetSession)
	}

	//-------------------------------------------------------
	// 5. Serve
	//-------------------------------------------------------
	utils.Info.Printf("Server running on %s", config.C.Server.Port)
	if err := r.Run(config.C.Server.Port); err != nil {
		utils.Error.Fatalf("server: %v", err)
	}
}
