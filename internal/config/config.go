package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// DefaultMessageID is the subscription template used when a reminder does not name one.
const DefaultMessageID = "3eKAvMUDfwzRBOIUatLtDROUxHdECTNmvk9vGOKMLck"

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port          string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	RedisURL      string
	LocalTimezone *time.Location

	ReminderSchedule  string
	ReminderRetention time.Duration
	DefaultMessageID  string
	// ReminderBatchSize can only lower the concurrency cap of 5; larger values are ignored.
	ReminderBatchSize      int
	ReminderAttemptTimeout time.Duration

	PushChannel string

	WeChatAppID            string
	WeChatSecret           string
	WeChatMiniprogramState string
	WeChatLang             string

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string

	FirebaseCredentialsPath string

	OpenAIAPIKey string
}

// Load reads configuration values and prepares defaults where applicable.
func Load() *Config {
	_ = godotenv.Load()

	timezoneName := getenvDefault("LOCAL_TIMEZONE", "Local")
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		log.Printf("config: invalid LOCAL_TIMEZONE %q, defaulting to system local: %v", timezoneName, err)
		location = time.Local
	}

	return &Config{
		Port:          getenvDefault("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getenvDefault("MONGO_DATABASE", "journal"),
		RedisURL:      os.Getenv("REDIS_URL"),
		LocalTimezone: location,

		ReminderSchedule:       getenvDefault("REMINDER_SCHEDULE", "*/1 * * * *"),
		ReminderRetention:      ParseDurationEnv("REMINDER_RETENTION", 24*time.Hour),
		DefaultMessageID:       getenvDefault("REMINDER_DEFAULT_MESSAGE_ID", DefaultMessageID),
		ReminderBatchSize:      ParseIntEnv("REMINDER_BATCH_SIZE", 5),
		ReminderAttemptTimeout: ParseDurationEnv("REMINDER_ATTEMPT_TIMEOUT", 20*time.Second),

		PushChannel: strings.ToLower(getenvDefault("PUSH_CHANNEL", "log")),

		WeChatAppID:            os.Getenv("WX_APPID"),
		WeChatSecret:           os.Getenv("WX_SECRET"),
		WeChatMiniprogramState: getenvDefault("WX_MINIPROGRAM_STATE", "formal"),
		WeChatLang:             getenvDefault("WX_LANG", "zh_CN"),

		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),

		FirebaseCredentialsPath: os.Getenv("FIREBASE_CREDENTIALS_PATH"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
	}
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

// ParseIntEnv returns the integer value for an environment variable or the provided default.
func ParseIntEnv(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as int: %v", key, value, err)
		return def
	}
	return parsed
}

// ParseDurationEnv returns the duration value for an environment variable or the provided default.
func ParseDurationEnv(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Printf("config: unable to parse %s=%q as a positive duration: %v", key, value, err)
		return def
	}
	return parsed
}
