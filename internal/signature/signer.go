package signature

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DigitalSignature 数字签章记录
type DigitalSignature struct {
	ID         string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	ApprovalID string    `json:"approvalId" gorm:"type:varchar(36);not null;index"`
	SignedBy   string    `json:"signedBy" gorm:"type:varchar(36);not null"`
	Algorithm  string    `json:"algorithm" gorm:"size:50;not null"`
	Signature  string    `json:"signature" gorm:"size:1000;not null"`
	PublicKey  string    `json:"publicKey" gorm:"size:1000;not null"`
	SignedAt   time.Time `json:"signedAt" gorm:"not null;autoCreateTime"`
}

// TableName 指定表名
func (DigitalSignature) TableName() string {
	return "digital_signatures"
}

// BeforeCreate 创建前生成 UUID
func (s *DigitalSignature) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Signer 签章协作方接口
type Signer interface {
	Sign(ctx context.Context, approvalID, signedBy string, payload []byte) (*DigitalSignature, error)
}

// Ed25519Signer 基于 Ed25519 的签章实现，签章记录持久化到数据库
type Ed25519Signer struct {
	db         *gorm.DB
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewEd25519Signer 创建签章服务，密钥在启动时生成
func NewEd25519Signer(db *gorm.DB) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("生成签章密钥失败: %w", err)
	}
	return &Ed25519Signer{db: db, privateKey: priv, publicKey: pub}, nil
}

// Sign 对审批结果进行签章并持久化
func (s *Ed25519Signer) Sign(ctx context.Context, approvalID, signedBy string, payload []byte) (*DigitalSignature, error) {
	sig := ed25519.Sign(s.privateKey, payload)

	record := &DigitalSignature{
		ApprovalID: approvalID,
		SignedBy:   signedBy,
		Algorithm:  "Ed25519",
		Signature:  base64.StdEncoding.EncodeToString(sig),
		PublicKey:  base64.StdEncoding.EncodeToString(s.publicKey),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("保存签章记录失败: %w", err)
	}
	return record, nil
}

// Verify 校验签章
func (s *Ed25519Signer) Verify(record *DigitalSignature, payload []byte) (bool, error) {
	pub, err := base64.StdEncoding.DecodeString(record.PublicKey)
	if err != nil {
		return false, fmt.Errorf("解析公钥失败: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(record.Signature)
	if err != nil {
		return false, fmt.Errorf("解析签名失败: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig), nil
}
