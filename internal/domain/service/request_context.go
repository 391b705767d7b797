package service

import (
	"context"
	"strings"
)

type aiCtxKey string

const (
	aiCtxKeyIntent   aiCtxKey = "ai_intent"
	aiCtxKeyRole     aiCtxKey = "ai_role"
	aiCtxKeyProvider aiCtxKey = "ai_provider"
)

func WithIntent(ctx context.Context, intent string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(intent)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, aiCtxKeyIntent, v)
}

func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(role)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, aiCtxKeyRole, v)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(provider)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, aiCtxKeyProvider, v)
}

func IntentFromContext(ctx context.Context) string {
	return stringFromContext(ctx, aiCtxKeyIntent)
}

func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, aiCtxKeyRole)
}

func ProviderFromContext(ctx context.Context) string {
	return stringFromContext(ctx, aiCtxKeyProvider)
}

func stringFromContext(ctx context.Context, key aiCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	v := ctx.Value(key)
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return strings.TrimSpace(s)
}
