package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	ParamsLoaded       string
	ParamsLoadFailed   string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	DryRunMode         string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	LedgerLoadFailed   string
	APIServerError     string
	MetricsInit        string
	SchedulerStarted   string
	UnknownRunMode     string

	// Notifications
	StrategyStarted string
	BotShutDown     string

	// Jobs
	CycleFailed  string
	StatusFailed string
	SizesWritten string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting GDA futures bot...",
	ConfigLoaded:       "Config loaded (Port: %s, mode: %s)",
	ParamsLoaded:       "Strategy %q loaded: %d markets, take profit %s",
	ParamsLoadFailed:   "Failed to load strategy parameters: %v",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	DryRunMode:         "Running in DRY-RUN mode (orders will NOT hit exchange)",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	LedgerLoadFailed:   "Failed to load ledger: %v",
	APIServerError:     "API server error: %v",
	MetricsInit:        "Metrics initialized",
	SchedulerStarted:   "Scheduler started: cycle at minute %d, status at %s UTC",
	UnknownRunMode:     "Unknown run mode %q",

	// Notifications
	StrategyStarted: "%s strategy has started",
	BotShutDown:     "The bot was shut down by user",

	// Jobs
	CycleFailed:  "Cycle failed: %v",
	StatusFailed: "Status report failed: %v",
	SizesWritten: "Position sizes written to %s",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動 GDA 期貨機器人...",
	ConfigLoaded:       "設定已載入（埠號：%s，模式：%s）",
	ParamsLoaded:       "策略 %q 已載入：%d 個市場，止盈模式 %s",
	ParamsLoadFailed:   "讀取策略參數失敗：%v",
	UsingDBPath:        "使用資料庫路徑：%s",
	ServerListening:    "服務監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	DryRunMode:         "DRY-RUN 模式（不會送出真實委託）",
	ConfigLoadFailed:   "讀取設定失敗：%v",
	DBInitFailed:       "初始化資料庫失敗：%v",
	DBMigrationsFailed: "套用資料庫遷移失敗：%v",
	LedgerLoadFailed:   "載入持倉紀錄失敗：%v",
	APIServerError:     "API 伺服器錯誤：%v",
	MetricsInit:        "系統指標初始化完成",
	SchedulerStarted:   "排程已啟動：每小時第 %d 分執行，狀態報告於 UTC %s",
	UnknownRunMode:     "未知的執行模式 %q",

	// Notifications
	StrategyStarted: "%s 策略已啟動",
	BotShutDown:     "機器人已由使用者關閉",

	// Jobs
	CycleFailed:  "交易週期失敗：%v",
	StatusFailed: "狀態報告失敗：%v",
	SizesWritten: "持倉規模已寫入 %s",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
