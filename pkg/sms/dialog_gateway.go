package sms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DialogGateway delivers SMS notifications via the Dialog eSMS API. It
// implements the notification transport contract: one Send per message,
// errors surface to the queue processor which owns retries.
type DialogGateway struct {
	mode     string // "dev" logs instead of sending
	apiURL   string
	username string
	password string
	mask     string
	client   *http.Client
	logger   *logrus.Logger

	// API tokens are short-lived; refresh lazily under the mutex.
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// Config holds configuration for the Dialog SMS gateway
type Config struct {
	Mode     string
	APIURL   string
	Username string
	Password string
	Mask     string
}

// NewDialogGateway creates a new Dialog SMS gateway client
func NewDialogGateway(cfg Config, logger *logrus.Logger) *DialogGateway {
	return &DialogGateway{
		mode:     cfg.Mode,
		apiURL:   cfg.APIURL,
		username: cfg.Username,
		password: cfg.Password,
		mask:     cfg.Mask,
		logger:   logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // seconds
	ErrCode    string `json:"errCode"`
}

type smsRecipient struct {
	Mobile string `json:"mobile"`
}

type sendSMSRequest struct {
	MSISDN        []smsRecipient `json:"msisdn"`
	Message       string         `json:"message"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	TransactionID int64          `json:"transaction_id"`
	PaymentMethod int            `json:"payment_method,omitempty"` // 0 = wallet
}

type sendSMSResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	ErrCode string `json:"errCode"`
}

// Send delivers one message to one phone number
func (d *DialogGateway) Send(recipient, payload string) error {
	if d.mode == "dev" {
		d.logger.WithFields(logrus.Fields{
			"recipient": recipient,
			"payload":   payload,
		}).Info("SMS (dev mode, not sent)")
		return nil
	}

	if err := d.ensureValidToken(); err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	formatted, err := formatPhone(recipient)
	if err != nil {
		return fmt.Errorf("failed to format phone number: %w", err)
	}

	smsReq := sendSMSRequest{
		MSISDN:        []smsRecipient{{Mobile: formatted}},
		Message:       payload,
		SourceAddress: d.mask,
		TransactionID: time.Now().UnixMicro(),
		PaymentMethod: 0,
	}

	jsonData, err := json.Marshal(smsReq)
	if err != nil {
		return fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/sms", d.apiURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create SMS request: %w", err)
	}

	d.tokenMutex.RLock()
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", d.token))
	d.tokenMutex.RUnlock()
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read SMS response: %w", err)
	}

	var smsResp sendSMSResponse
	if err := json.Unmarshal(body, &smsResp); err != nil {
		return fmt.Errorf("failed to parse SMS response: %w", err)
	}

	if smsResp.Status != "success" {
		return fmt.Errorf("SMS sending failed: %s (error code: %s)", smsResp.Comment, smsResp.ErrCode)
	}

	return nil
}

// login retrieves a fresh access token
func (d *DialogGateway) login() error {
	jsonData, err := json.Marshal(loginRequest{Username: d.username, Password: d.password})
	if err != nil {
		return fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/login", d.apiURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	var loginResp loginResponse
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}

	if loginResp.Status != "success" {
		return fmt.Errorf("login failed: %s (error code: %s)", loginResp.Comment, loginResp.ErrCode)
	}

	d.tokenMutex.Lock()
	d.token = loginResp.Token
	d.tokenExpiry = time.Now().Add(time.Duration(loginResp.Expiration) * time.Second)
	d.tokenMutex.Unlock()

	return nil
}

func (d *DialogGateway) isTokenValid() bool {
	d.tokenMutex.RLock()
	defer d.tokenMutex.RUnlock()

	if d.token == "" {
		return false
	}

	// Treat the token as stale 5 minutes before actual expiry.
	return time.Now().Before(d.tokenExpiry.Add(-5 * time.Minute))
}

func (d *DialogGateway) ensureValidToken() error {
	if d.isTokenValid() {
		return nil
	}
	return d.login()
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// formatPhone converts a phone number to Dialog's 9-digit format.
// Accepts "0771234567", "94771234567" or "+94771234567".
func formatPhone(phone string) (string, error) {
	phone = nonDigits.ReplaceAllString(phone, "")

	if strings.HasPrefix(phone, "94") && len(phone) == 11 {
		phone = phone[2:]
	}
	if strings.HasPrefix(phone, "0") && len(phone) == 10 {
		phone = phone[1:]
	}

	if len(phone) != 9 {
		return "", fmt.Errorf("invalid phone number length after formatting: %d digits (expected 9)", len(phone))
	}
	if !strings.HasPrefix(phone, "7") {
		return "", fmt.Errorf("invalid mobile prefix: must start with 7")
	}

	return phone, nil
}
