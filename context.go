package authkit

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Issued refresh tokens
// record it in their metadata and audit events carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Issued refresh
// tokens record it in their metadata.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func requestMeta(ctx context.Context) map[string]string {
	meta := make(map[string]string, 2)
	if ip := clientIPFromContext(ctx); ip != "" {
		meta["ip"] = ip
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		meta["user_agent"] = ua
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
