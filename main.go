package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"community-digest/config"
	"community-digest/models"
	"community-digest/services"
	"community-digest/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var newDiscussionsCounter prometheus.Counter

func init() {
	newDiscussionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discussions_collected_total",
			Help: "Total number of discussion records written by pipeline runs.",
		},
	)
	prometheus.MustRegister(newDiscussionsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to discussion database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Discussion{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	snapshots, err := storage.NewSnapshotStore(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	if snapshots == nil {
		logging.Info("Snapshot archival disabled (no bucket configured).")
	}

	pipeline, err := services.NewPipeline(cfg, db, logging.Named("pipeline"), snapshots)
	if err != nil {
		logging.Fatal("Pipeline setup failed", zap.Error(err))
	}

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupHealthRoute(router, cfg)
	setupDataRoutes(router, db, logging)
	setupCollectRoute(router, pipeline, logging)

	cronScheduler := cron.New()
	if _, err := cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled pipeline job...")
		count, started, err := pipeline.TryRun(context.Background())
		switch {
		case !started:
			logging.Warn("Pipeline run skipped, previous run still in flight")
		case err != nil:
			logging.Error("Cron job failed", zap.Error(err))
		default:
			logging.Info("Cron job completed", zap.Int("records", count))
			newDiscussionsCounter.Add(float64(count))
		}
	}); err != nil {
		logging.Fatal("Invalid cron schedule", zap.String("schedule", cfg.CronSchedule), zap.Error(err))
	}
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupHealthRoute(router *gin.Engine, cfg *config.Config) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "environment": cfg.Env})
	})
}

// discussionView ist die API-Sicht auf einen Datensatz; is_deleted heißt nach außen source_deleted.
type discussionView struct {
	ID            uint      `json:"id"`
	SourceID      string    `json:"source_id"`
	SourceType    string    `json:"source_type"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	URL           string    `json:"url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	CleanData     string    `json:"clean_data"`
	TopicSummary  string    `json:"topic_summary"`
	TopicClosed   bool      `json:"topic_closed"`
	SourceClosed  bool      `json:"source_closed"`
	SourceDeleted bool      `json:"source_deleted"`
}

func toView(d models.Discussion) discussionView {
	return discussionView{
		ID:            d.ID,
		SourceID:      d.SourceID,
		SourceType:    d.SourceType,
		Title:         d.Title,
		Body:          d.Body,
		URL:           d.URL,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		CleanData:     d.CleanData,
		TopicSummary:  d.TopicSummary,
		TopicClosed:   d.TopicClosed,
		SourceClosed:  d.SourceClosed,
		SourceDeleted: d.IsDeleted,
	}
}

// allowedUpdateFields ist die Allow-List für partielle Updates über PUT /data.
var allowedUpdateFields = map[string]bool{
	"url":           true,
	"topic_closed":  true,
	"topic_summary": true,
}

func setupDataRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	router.GET("/data", func(c *gin.Context) {
		page, pageSize, ok := pagination(c)
		if !ok {
			return
		}

		var discussions []models.Discussion
		query := db.
			Where("topic_closed = ?", false).
			Where("(topic_summary <> '') OR (topic_summary = '' AND is_deleted = ?)", false)
		if err := query.
			Order("id").
			Limit(pageSize).
			Offset((page - 1) * pageSize).
			Find(&discussions).Error; err != nil {
			log.Error("Database query for discussions failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var total int64
		if err := db.Model(&models.Discussion{}).
			Where("topic_closed = ? AND is_deleted = ?", false, false).
			Count(&total).Error; err != nil {
			log.Error("Count query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		views := make([]discussionView, 0, len(discussions))
		for _, d := range discussions {
			views = append(views, toView(d))
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "success",
			"data":      views,
			"page":      page,
			"page_size": pageSize,
			"total":     total,
		})
	})

	router.GET("/latest", func(c *gin.Context) {
		page, pageSize, ok := pagination(c)
		if !ok {
			return
		}

		since := services.LastFriday(time.Now())
		var discussions []models.Discussion
		if err := db.
			Where("created_at > ?", since).
			Order("id").
			Limit(pageSize).
			Offset((page - 1) * pageSize).
			Find(&discussions).Error; err != nil {
			log.Error("Latest query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		views := make([]discussionView, 0, len(discussions))
		for _, d := range discussions {
			views = append(views, toView(d))
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": views, "since": since})
	})

	router.PUT("/data", func(c *gin.Context) {
		var updates []map[string]any
		if err := c.ShouldBindJSON(&updates); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		// Erst alles validieren, dann schreiben: ein ungültiger Eintrag lehnt den ganzen Request ab.
		for _, item := range updates {
			if _, ok := item["id"]; !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "every record needs an id"})
				return
			}
			for key := range item {
				if key != "id" && !allowedUpdateFields[key] {
					c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field: " + key})
					return
				}
			}
		}

		affected, failed := 0, 0
		for _, item := range updates {
			fields := map[string]any{}
			for key, value := range item {
				if allowedUpdateFields[key] {
					fields[key] = value
				}
			}
			if len(fields) == 0 {
				continue
			}

			result := db.Model(&models.Discussion{}).Where("id = ?", item["id"]).Updates(fields)
			if result.Error != nil {
				log.Error("Batch update failed for record", zap.Any("id", item["id"]), zap.Error(result.Error))
				failed++
				continue
			}
			affected += int(result.RowsAffected)
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "affected_rows": affected, "failed": failed})
	})
}

func setupCollectRoute(router *gin.Engine, pipeline *services.Pipeline, log *zap.Logger) {
	router.POST("/collect", func(c *gin.Context) {
		started := pipeline.TryStart(context.Background(), func(count int, err error) {
			if err != nil {
				log.Error("Manual pipeline run failed", zap.Error(err))
				return
			}
			log.Info("Manual pipeline run completed", zap.Int("records", count))
			newDiscussionsCounter.Add(float64(count))
		})
		if !started {
			c.JSON(http.StatusConflict, gin.H{"error": "a pipeline run is already in progress"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "Pipeline run triggered."})
	})
}

// pagination liest page/page_size aus der Query; beide müssen größer als 0 sein.
func pagination(c *gin.Context) (page, pageSize int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
		return 0, 0, false
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if err != nil || pageSize < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be a positive integer"})
		return 0, 0, false
	}
	return page, pageSize, true
}
