package service

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
)

type ChargeRequest struct {
	OrderID       string
	Amount        int64
	CourseID      uint
	CourseTitle   string
	CustomerName  string
	CustomerEmail string
}

type ChargeResponse struct {
	Token       string
	RedirectURL string
}

// GatewayStatus 网关侧的交易状态
type GatewayStatus struct {
	OrderID           string
	StatusCode        string
	TransactionStatus string
	FraudStatus       string
	GrossAmount       string
}

// PaymentNotification Midtrans HTTP notification
type PaymentNotification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id" binding:"required"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

type PaymentGateway interface {
	CreateTransaction(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	CheckStatus(ctx context.Context, orderID string) (*GatewayStatus, error)
	VerifySignature(n *PaymentNotification) bool
}

// GatewayOutcome 网关状态映射后的结果
type GatewayOutcome string

const (
	OutcomePaid    GatewayOutcome = "paid"
	OutcomePending GatewayOutcome = "pending"
	OutcomeFailed  GatewayOutcome = "failed"
	OutcomeIgnored GatewayOutcome = "ignored"
)

// MapMidtransStatus settlement 与 capture+accept 视为已支付；challenge 仍需人工审核
func MapMidtransStatus(transactionStatus, fraudStatus string) GatewayOutcome {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return OutcomePaid
		case "challenge":
			return OutcomePending
		default:
			return OutcomeFailed
		}
	case "settlement":
		return OutcomePaid
	case "pending", "authorize":
		return OutcomePending
	case "deny", "cancel", "expire", "failure":
		return OutcomeFailed
	default:
		// refund / partial_refund 等不影响报名
		return OutcomeIgnored
	}
}

// ParseGrossAmount "800.00" -> 800
func ParseGrossAmount(s string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

// MidtransSignature SHA512(order_id + status_code + gross_amount + server_key)
func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

type MidtransGateway struct {
	serverKey string
	snap      snap.Client
	core      coreapi.Client
}

func NewMidtransGateway(serverKey string, production bool) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	g := &MidtransGateway{serverKey: serverKey}
	g.snap.New(serverKey, env)
	g.core.New(serverKey, env)
	return g
}

// callWithContext midtrans SDK 不支持 context，这里在超时后放弃等待
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (g *MidtransGateway) CreateTransaction(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	return callWithContext(ctx, func() (*ChargeResponse, error) {
		snapReq := &snap.Request{
			TransactionDetails: midtrans.TransactionDetails{
				OrderID:  req.OrderID,
				GrossAmt: req.Amount,
			},
			CustomerDetail: &midtrans.CustomerDetails{
				FName: req.CustomerName,
				Email: req.CustomerEmail,
			},
			Items: &[]midtrans.ItemDetails{
				{
					ID:    strconv.FormatUint(uint64(req.CourseID), 10),
					Name:  truncate(req.CourseTitle, 50),
					Price: req.Amount,
					Qty:   1,
				},
			},
		}
		resp, merr := g.snap.CreateTransaction(snapReq)
		if merr != nil {
			return nil, fmt.Errorf("midtrans snap: %s", merr.Message)
		}
		return &ChargeResponse{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
	})
}

func (g *MidtransGateway) CheckStatus(ctx context.Context, orderID string) (*GatewayStatus, error) {
	return callWithContext(ctx, func() (*GatewayStatus, error) {
		resp, merr := g.core.CheckTransaction(orderID)
		if merr != nil {
			return nil, fmt.Errorf("midtrans status: %s", merr.Message)
		}
		return &GatewayStatus{
			OrderID:           resp.OrderID,
			StatusCode:        resp.StatusCode,
			TransactionStatus: resp.TransactionStatus,
			FraudStatus:       resp.FraudStatus,
			GrossAmount:       resp.GrossAmount,
		}, nil
	})
}

func (g *MidtransGateway) VerifySignature(n *PaymentNotification) bool {
	if n.SignatureKey == "" {
		return false
	}
	want := MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, g.serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.SignatureKey))) == 1
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
