package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/silenceper/wechat/v2"
	"github.com/silenceper/wechat/v2/cache"
	miniConfig "github.com/silenceper/wechat/v2/miniprogram/config"
	"github.com/silenceper/wechat/v2/miniprogram/subscribe"
	"github.com/silenceper/wechat/v2/util"
)

const defaultWeChatPage = "pages/index/index"

// Keys of the reminder subscription template.
const (
	fieldSubject = "thing5"
	fieldBody    = "thing2"
	fieldTime    = "time3"
)

// WeChatConfig configures the mini-program subscription message client.
type WeChatConfig struct {
	AppID            string
	Secret           string
	Page             string
	MiniprogramState string
	Lang             string
	// HTTPClient replaces the SDK's process-wide client.
	HTTPClient *http.Client
}

// WeChatError is a non-zero errcode returned by the WeChat API.
type WeChatError struct {
	Code    int
	Message string
}

func (e *WeChatError) Error() string {
	return fmt.Sprintf("wechat: errcode %d: %s", e.Code, e.Message)
}

// WeChat sends mini-program subscription messages. The user id is the mini-program openid.
// Access tokens are fetched and cached by the SDK.
type WeChat struct {
	cfg       WeChatConfig
	subscribe *subscribe.Subscribe
	logger    *log.Logger
}

// NewWeChat creates a WeChat client with sensible defaults for unset options.
func NewWeChat(cfg WeChatConfig, logger *log.Logger) *WeChat {
	if cfg.Page == "" {
		cfg.Page = defaultWeChatPage
	}
	if cfg.MiniprogramState == "" {
		cfg.MiniprogramState = "formal"
	}
	if cfg.Lang == "" {
		cfg.Lang = "zh_CN"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	wc := wechat.NewWechat()
	wc.SetHTTPClient(client)
	mini := wc.GetMiniProgram(&miniConfig.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.Secret,
		Cache:     cache.NewMemory(),
	})
	return &WeChat{cfg: cfg, subscribe: mini.GetSubscribe(), logger: logger}
}

// Send ignores ctx beyond an early cancellation check; the SDK call is bounded
// by the HTTP client timeout.
func (w *WeChat) Send(ctx context.Context, userID, templateID string, msg Message) (bool, error) {
	openID := strings.TrimSpace(userID)
	if openID == "" {
		return false, ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := w.subscribe.Send(&subscribe.Message{
		ToUser:     openID,
		TemplateID: templateID,
		Page:       w.cfg.Page,
		Data: map[string]*subscribe.DataItem{
			fieldSubject: {Value: msg.Subject},
			fieldBody:    {Value: msg.Body},
			fieldTime:    {Value: msg.Time},
		},
		MiniprogramState: w.cfg.MiniprogramState,
		Lang:             w.cfg.Lang,
	})
	if err != nil {
		var apiErr *util.CommonError
		if errors.As(err, &apiErr) {
			return false, &WeChatError{Code: int(apiErr.ErrCode), Message: apiErr.ErrMsg}
		}
		return false, fmt.Errorf("wechat: send subscription message: %w", err)
	}

	w.logger.Printf("push(wechat): subscription message delivered to %s", openID)
	return true, nil
}
