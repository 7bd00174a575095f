package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"wisefido-pose/internal/common/config"
	"wisefido-pose/internal/evaluator"
	"wisefido-pose/internal/geometry"

	"github.com/joho/godotenv"
)

// Config 姿态跌倒检测服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	HTTP struct {
		Addr string // 监听地址，如 ":8080"
	}

	// 姿态服务特定配置
	Pose struct {
		Workers        int           // 会话 worker 数量（按 user_id 分片）
		QueueSize      int           // 每个 worker 的任务队列长度
		SessionTTL     time.Duration // 会话无帧超过该时长即结束并释放缓冲区
		EvictInterval  time.Duration // 空闲会话检查间隔
		BufferCapacity int           // 每会话环形缓冲区容量（帧）

		// 接入方式
		Ingest struct {
			MQTTEnabled   bool
			MQTTTopic     string // 如 "pose/+/frames"
			StreamEnabled bool
			InputStream   string // 如 "pose:frames:stream"
			ConsumerGroup string
			ConsumerName  string
			BatchSize     int64
		}
	}

	// 通知与实时推送
	Notify struct {
		QueueSize        int // 后台通知队列长度
		Workers          int
		WebhookURL       string // 为空时不启用
		WebhookTimeout   time.Duration
		RedisEnabled     bool   // 启用 Redis 告警流 / 告警缓存 / 拒绝帧审计流
		AlertStream      string // 如 "pose:fall-alerts"
		AlertStreamMax   int64
		AlertCachePrefix string
		AlertCacheTTL    time.Duration
		AuditStream      string // 如 "pose:frames:rejected"
		AuditStreamMax   int64
	}

	Geometry  geometry.Params
	Detection evaluator.Params

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（先读取可选的 .env，不覆盖已有环境变量）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Driver = getEnv("DB_DRIVER", "postgres")
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "owlrd"
	cfg.Database.SSLMode = "disable"
	cfg.Database.SQLitePath = "wisefido-pose.db"
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "wisefido-pose"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Pose.Workers = getEnvInt("POSE_WORKERS", 8)
	cfg.Pose.QueueSize = getEnvInt("POSE_QUEUE_SIZE", 256)
	cfg.Pose.SessionTTL = getEnvDuration("POSE_SESSION_TTL", 2*time.Minute)
	cfg.Pose.EvictInterval = getEnvDuration("POSE_EVICT_INTERVAL", 30*time.Second)
	cfg.Pose.BufferCapacity = getEnvInt("POSE_BUFFER_CAPACITY", 180) // 5s @ 30fps + 余量

	cfg.Pose.Ingest.MQTTEnabled = getEnvBool("POSE_MQTT_ENABLED", false)
	cfg.Pose.Ingest.MQTTTopic = getEnv("POSE_MQTT_TOPIC", "pose/+/frames")
	cfg.Pose.Ingest.StreamEnabled = getEnvBool("POSE_STREAM_ENABLED", false)
	cfg.Pose.Ingest.InputStream = getEnv("POSE_STREAM_INPUT", "pose:frames:stream")
	cfg.Pose.Ingest.ConsumerGroup = getEnv("POSE_CONSUMER_GROUP", "pose-detector-group")
	cfg.Pose.Ingest.ConsumerName = getEnv("POSE_CONSUMER_NAME", "pose-detector-1")
	cfg.Pose.Ingest.BatchSize = int64(getEnvInt("POSE_STREAM_BATCH", 20))

	cfg.Notify.QueueSize = getEnvInt("NOTIFY_QUEUE_SIZE", 128)
	cfg.Notify.Workers = getEnvInt("NOTIFY_WORKERS", 2)
	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")
	cfg.Notify.WebhookTimeout = getEnvDuration("NOTIFY_WEBHOOK_TIMEOUT", 5*time.Second)
	cfg.Notify.RedisEnabled = getEnvBool("NOTIFY_REDIS_ENABLED", false)
	cfg.Notify.AlertStream = getEnv("NOTIFY_ALERT_STREAM", "pose:fall-alerts")
	cfg.Notify.AlertStreamMax = int64(getEnvInt("NOTIFY_ALERT_STREAM_MAXLEN", 10000))
	cfg.Notify.AlertCachePrefix = getEnv("ALERT_CACHE_PREFIX", "pose:alert:latest:")
	cfg.Notify.AlertCacheTTL = getEnvDuration("ALERT_CACHE_TTL", 10*time.Minute)
	cfg.Notify.AuditStream = getEnv("AUDIT_STREAM", "pose:frames:rejected")
	cfg.Notify.AuditStreamMax = int64(getEnvInt("AUDIT_STREAM_MAXLEN", 5000))

	cfg.Geometry = geometry.DefaultParams()
	cfg.Geometry.MinVisibility = getEnvFloat("DETECT_MIN_VISIBILITY", cfg.Geometry.MinVisibility)
	cfg.Geometry.HorizontalRatio = getEnvFloat("DETECT_HORIZONTAL_RATIO", cfg.Geometry.HorizontalRatio)

	d := evaluator.DefaultParams()
	d.MinFrames = getEnvInt("DETECT_MIN_FRAMES", d.MinFrames)
	d.WindowDuration = getEnvDuration("DETECT_WINDOW", d.WindowDuration)
	d.Cooldown = getEnvDuration("DETECT_COOLDOWN", d.Cooldown)
	d.StandingHeight = getEnvFloat("DETECT_STANDING_HEIGHT", d.StandingHeight)
	d.FloorHeight = getEnvFloat("DETECT_FLOOR_HEIGHT", d.FloorHeight)
	d.RapidDescentWindow = getEnvDuration("DETECT_RAPID_DESCENT_WINDOW", d.RapidDescentWindow)
	d.StillnessThreshold = getEnvFloat("DETECT_STILLNESS_THRESHOLD", d.StillnessThreshold)
	d.StillnessDuration = getEnvDuration("DETECT_STILLNESS_DURATION", d.StillnessDuration)
	d.FastDescentVelocity = getEnvFloat("DETECT_FAST_DESCENT_VELOCITY", d.FastDescentVelocity)
	d.UprightAngle = getEnvFloat("DETECT_UPRIGHT_ANGLE", d.UprightAngle)
	d.TiltedAngle = getEnvFloat("DETECT_TILTED_ANGLE", d.TiltedAngle)
	d.AngleChangeMaxFrames = getEnvInt("DETECT_ANGLE_CHANGE_FRAMES", d.AngleChangeMaxFrames)
	d.AngleHoldDuration = getEnvDuration("DETECT_ANGLE_HOLD", d.AngleHoldDuration)
	d.MinConfidence = getEnvFloat("DETECT_MIN_CONFIDENCE", d.MinConfidence)
	d.CriticalStillness = getEnvDuration("DETECT_CRITICAL_STILLNESS", d.CriticalStillness)
	// 帧可靠性与窗口不可靠判定使用同一阈值
	d.MinVisibility = cfg.Geometry.MinVisibility
	cfg.Detection = d

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置一致性
func (c *Config) Validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" && c.Database.Driver != "memory" {
		return fmt.Errorf("unsupported DB_DRIVER %q (postgres, sqlite, memory)", c.Database.Driver)
	}
	if c.Pose.Workers <= 0 || c.Pose.QueueSize <= 0 {
		return fmt.Errorf("POSE_WORKERS and POSE_QUEUE_SIZE must be positive")
	}
	if c.Detection.MinFrames <= 0 {
		return fmt.Errorf("DETECT_MIN_FRAMES must be positive")
	}
	if c.Pose.BufferCapacity < c.Detection.MinFrames {
		return fmt.Errorf("POSE_BUFFER_CAPACITY (%d) must be >= DETECT_MIN_FRAMES (%d)",
			c.Pose.BufferCapacity, c.Detection.MinFrames)
	}
	d := c.Detection
	if d.UprightAngle < 0 || d.UprightAngle >= d.TiltedAngle {
		return fmt.Errorf("DETECT_UPRIGHT_ANGLE must be in [0, DETECT_TILTED_ANGLE)")
	}
	// 规则C 与评分按 (angle-tilted)/(90-tilted) 归一化
	if d.TiltedAngle >= 90 {
		return fmt.Errorf("DETECT_TILTED_ANGLE must be below 90 degrees")
	}
	for _, p := range []struct {
		name  string
		value time.Duration
	}{
		{"DETECT_WINDOW", d.WindowDuration},
		{"DETECT_RAPID_DESCENT_WINDOW", d.RapidDescentWindow},
		{"DETECT_STILLNESS_DURATION", d.StillnessDuration},
		{"DETECT_ANGLE_HOLD", d.AngleHoldDuration},
		{"DETECT_CRITICAL_STILLNESS", d.CriticalStillness / 2},
	} {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvDuration 支持 "30s" / "2m" 等格式，纯数字按秒处理
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
