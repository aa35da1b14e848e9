package referral

import (
	"context"

	"github.com/dumeirei/referral-ledger/internal/common/config"
	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/qrcode"
)

// InviteCard 用户的邀请码、邀请链接与二维码
type InviteCard struct {
	InviteCode string `json:"invite_code"`
	InviteURL  string `json:"invite_url"`
	QRCode     string `json:"qrcode"` // data URL
}

// InviteService 生成邀请链接与二维码
type InviteService struct {
	referral    *Service
	generator   *qrcode.Generator
	registerURL string
}

// NewInviteService 创建邀请服务
func NewInviteService(referralSvc *Service, cfg config.ReferralConfig) *InviteService {
	return &InviteService{
		referral:    referralSvc,
		generator:   qrcode.NewGenerator(qrcode.WithSize(cfg.QRCodeSize)),
		registerURL: cfg.RegisterURL,
	}
}

// Link 用户的邀请链接
func (s *InviteService) Link(ctx context.Context, userID int64) (string, string, error) {
	user, err := s.referral.GetUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	link, err := qrcode.InviteLink(s.registerURL, user.InviteCode)
	if err != nil {
		return "", "", appErrors.ErrInternalError.WithError(err)
	}
	return user.InviteCode, link, nil
}

// Card 邀请卡片，二维码内容为邀请链接
func (s *InviteService) Card(ctx context.Context, userID int64) (*InviteCard, error) {
	code, link, err := s.Link(ctx, userID)
	if err != nil {
		return nil, err
	}
	dataURL, err := s.generator.DataURL(link)
	if err != nil {
		return nil, appErrors.ErrInternalError.WithError(err)
	}
	return &InviteCard{InviteCode: code, InviteURL: link, QRCode: dataURL}, nil
}

// QRCodePNG 邀请二维码图片
func (s *InviteService) QRCodePNG(ctx context.Context, userID int64) ([]byte, error) {
	_, link, err := s.Link(ctx, userID)
	if err != nil {
		return nil, err
	}
	data, err := s.generator.PNG(link)
	if err != nil {
		return nil, appErrors.ErrInternalError.WithError(err)
	}
	return data, nil
}
