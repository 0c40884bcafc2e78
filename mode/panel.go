package mode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-console/console"
	"github.com/khaledhikmat/vs-console/model"
	"github.com/khaledhikmat/vs-console/pipeline"
	"github.com/khaledhikmat/vs-console/service/lgr"
)

const (
	noFrameMessage     = "No frame received yet"
	invalidBodyMessage = "Invalid request body"
)

// rangeMessages maps a start request field to the message shown when its
// binding rule fails.
var rangeMessages = map[string]string{
	"ConfidenceThreshold": "confidence_threshold must be between 0 and 1",
	"FPS":                 "fps must be between 1 and 60",
}

// Panel serves the live panel over local HTTP until the context is cancelled.
func Panel(canxCtx context.Context, svcs pipeline.ServicesFactory, _ Options) error {
	ctrl := console.New(canxCtx, svcs)
	defer shutdown(svcs.CfgSvc, ctrl, "panel")

	if err := ctrl.Refresh(canxCtx); err != nil {
		lgr.Logger.Warn(
			"panel initial refresh failed",
			lgr.Err(err),
		)
	}

	srv := &http.Server{
		Addr:              svcs.CfgSvc.GetPanelAddr(),
		Handler:           NewRouter(canxCtx, svcs, ctrl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		lgr.Logger.Info(
			"panel listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"panel context cancelled",
		)
	case err := <-serverErr:
		procError(model.GenError("panel", err, map[string]interface{}{
			"addr": srv.Addr,
		}, "panel server failed"))
		return xerrors.Errorf("panel server: %w", err)
	}

	period := time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), period)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lgr.Logger.Info(
			"panel server shutdown waiting period expired",
			lgr.Err(err),
		)
	}
	return nil
}

// startRequest mirrors the live stream query. Omitted tuning fields take the
// configured defaults.
type startRequest struct {
	CameraID            *int     `json:"camera_id"`
	StreamURL           *string  `json:"stream_url"`
	ConfidenceThreshold *float64 `json:"confidence_threshold" binding:"omitnil,gte=0,lte=1"`
	FPS                 *int     `json:"fps" binding:"omitnil,min=1,max=60"`
}

func (r startRequest) params(svcs pipeline.ServicesFactory) model.StreamParams {
	defaults := svcs.CfgSvc.GetStreamParameters()
	params := model.StreamParams{
		StreamTarget: model.StreamTarget{
			CameraID:  r.CameraID,
			StreamURL: r.StreamURL,
		},
		ConfidenceThreshold: defaults.ConfidenceThreshold,
		FPS:                 defaults.FPS,
	}
	if r.ConfidenceThreshold != nil {
		params.ConfidenceThreshold = *r.ConfidenceThreshold
	}
	if r.FPS != nil {
		params.FPS = *r.FPS
	}
	return params
}

// NewRouter builds the panel routes over ctrl. Streaming responses end when canx
// is cancelled.
func NewRouter(canx context.Context, svcs pipeline.ServicesFactory, ctrl *console.Controller) *gin.Engine {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	origins := svcs.CfgSvc.GetPanelOrigins()
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(svcs.MetricsSvc.Handler()))

	api := router.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		snap := ctrl.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":  snap.Status,
			"busy":    snap.Busy,
			"live":    snap.Live.Active,
			"cameras": len(snap.Cameras),
			"events":  len(snap.Events),
			"users":   len(snap.Users),
		})
	})

	live := api.Group("/live")
	live.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Live())
	})

	live.GET("/frame", func(c *gin.Context) {
		state := ctrl.Live()
		if !state.HasFrame() {
			c.JSON(http.StatusNotFound, gin.H{"detail": noFrameMessage})
			return
		}
		data, err := state.FrameBytes()
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Frame is not valid base64"})
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, console.DetectContentType(data), data)
	})

	live.GET("/stream", func(c *gin.Context) {
		snapshots, unsubscribe := ctrl.Subscribe()
		defer unsubscribe()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		c.Stream(func(_ io.Writer) bool {
			select {
			case <-canx.Done():
				return false
			case <-c.Request.Context().Done():
				return false
			case snap, ok := <-snapshots:
				if !ok {
					return false
				}
				c.SSEvent("message", snap.Live)
				return true
			}
		})
	})

	live.POST("/start", func(c *gin.Context) {
		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": bindMessage(err)})
			return
		}

		if err := ctrl.StartLiveStream(req.params(svcs)); err != nil {
			code := http.StatusBadGateway
			if model.IsValidationError(err) {
				code = http.StatusBadRequest
			}
			c.JSON(code, gin.H{"detail": model.Message(err)})
			return
		}
		c.JSON(http.StatusAccepted, ctrl.Live())
	})

	live.POST("/stop", func(c *gin.Context) {
		ctrl.StopLiveStream()
		c.JSON(http.StatusOK, ctrl.Live())
	})

	return router
}

func bindMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalidBodyMessage
	}
	if message, ok := rangeMessages[fieldErrs[0].Field()]; ok {
		return message
	}
	return invalidBodyMessage
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		lgr.Logger.Debug(
			"panel request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
