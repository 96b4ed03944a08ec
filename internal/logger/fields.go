package logger

import (
	"time"

	"go.uber.org/zap"
)

/* ==================================== HTTP ==================================== */

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

/* ================================== Domain =================================== */

func UserID(v string) zap.Field { return zap.String("user_id", v) }

func JTI(v string) zap.Field { return zap.String("jti", v) }

func Factor(v string) zap.Field { return zap.String("factor", v) }

// Op names the operation being performed, e.g. "login" or "rotate".
func Op(v string) zap.Field { return zap.String("op", v) }

// Err is zap.Error under a shorter name for call sites that build field lists.
func Err(err error) zap.Field { return zap.Error(err) }
