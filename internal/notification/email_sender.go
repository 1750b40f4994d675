package notification

import (
	"bytes"
	"fmt"
	"net/smtp"

	"backend/internal/config"
)

// EmailSender SMTP 邮件发送器
type EmailSender struct {
	cfg *config.NotificationConfig
}

// NewEmailSender 创建邮件发送器
func NewEmailSender(cfg *config.NotificationConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

// Enabled 邮件渠道是否启用
func (s *EmailSender) Enabled() bool {
	return s.cfg != nil && s.cfg.EmailEnabled && s.cfg.SMTPHost != ""
}

// Send 发送纯文本邮件
func (s *EmailSender) Send(to, subject, body string) error {
	if !s.Enabled() {
		return fmt.Errorf("邮件渠道未启用")
	}

	// 构建MIME消息
	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.EmailFrom))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.EmailFrom, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}
