package service

import (
	"context"
	"errors"
	"time"

	"cloudconnect-server/internal/cache"
	"cloudconnect-server/internal/logging"
	"cloudconnect-server/internal/model"
	"cloudconnect-server/internal/repository"
	"cloudconnect-server/pkg/jwt"
	"cloudconnect-server/pkg/util"
)

// AuthService 认证服务
// 处理用户注册、登录、登出和 Token 校验
type AuthService struct {
	userRepo   *repository.UserRepository // 用户数据访问层
	cache      *cache.RedisCache          // Redis 缓存（Token 黑名单）
	jwtService *jwt.JWTService            // JWT 服务
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	userRepo *repository.UserRepository,
	cache *cache.RedisCache,
	jwtService *jwt.JWTService,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		cache:      cache,
		jwtService: jwtService,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"` // 用户名
	Password string `json:"password" binding:"required,min=6"`        // 密码
	Email    string `json:"email" binding:"omitempty,email"`          // 邮箱（可选）
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // 用户名
	Password string `json:"password" binding:"required"` // 密码
}

// TokenResponse 登录/注册/刷新返回的 Token
type TokenResponse struct {
	AccessToken  string      `json:"accessToken"`    // 访问令牌
	RefreshToken string      `json:"refreshToken"`   // 刷新令牌
	ExpiresIn    int64       `json:"expiresIn"`      // 过期时间（秒）
	User         *model.User `json:"user,omitempty"` // 用户信息
}

// Register 用户注册
// 注册成功后直接签发 Token，等同于登录
// 返回:
//   - *TokenResponse: Token 和用户信息
//   - error: 用户名已存在返回 ErrUserExists
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*TokenResponse, error) {
	exists, err := s.userRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := util.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
	}
	if req.Email != "" {
		user.Email = &req.Email
	}

	// 并发注册同名用户时由唯一索引兜底
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	logging.Ctx(ctx).Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return s.issueTokens(user)
}

// Login 用户登录
// 用户不存在和密码错误返回同一个错误，避免枚举用户名
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil || !util.CheckPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.issueTokens(user)
}

// RefreshToken 使用 Refresh Token 换取新的 Token
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if s.cache.IsTokenBlacklisted(ctx, util.HashToken(refreshToken)) {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	return s.issueTokens(user)
}

// LogoutRequest 登出请求
// 提供 RefreshToken 时一并注销，之后不能再用它换取新 Token
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout 用户登出
// 将 Access Token 和请求中的 Refresh Token 加入黑名单，TTL 为各自的剩余有效期
// 参数:
//   - ctx: 上下文
//   - userID: 当前用户
//   - accessToken: 当前请求使用的 Access Token
//   - accessExpireAt: Access Token 过期时间
//   - refreshToken: 可选，无效或属于其他用户时忽略
func (s *AuthService) Logout(ctx context.Context, userID int64, accessToken string, accessExpireAt time.Time, refreshToken string) error {
	if err := s.cache.BlacklistToken(ctx, util.HashToken(accessToken), accessExpireAt); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}

	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil || claims.UserID != userID {
		return nil
	}
	return s.cache.BlacklistToken(ctx, util.HashToken(refreshToken), claims.ExpiresAt.Time)
}

// Authenticate 校验 Access Token 并确认未被注销
// HTTP 中间件和 WebSocket 握手共用
func (s *AuthService) Authenticate(ctx context.Context, token string) (*jwt.UserClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims, err := s.jwtService.ValidateToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if s.cache.IsTokenBlacklisted(ctx, util.HashToken(token)) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessExpire 返回 Access Token 有效期，用于设置 Cookie
func (s *AuthService) AccessExpire() time.Duration {
	return s.jwtService.GetAccessExpire()
}

func (s *AuthService) issueTokens(user *model.User) (*TokenResponse, error) {
	accessToken, err := s.jwtService.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtService.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtService.GetAccessExpire().Seconds()),
		User:         user,
	}, nil
}
