package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lostfound-chat/internal/mocks"
	"lostfound-chat/internal/models"
)

func setupUserRouter(handler *UserHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.GET("/users/me", handler.GetMe)
	r.PUT("/users/me", handler.PutMe)
	return r
}

func TestGetMe(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupUserRouter(NewUserHandler(users, nil, zap.NewNop()))
	users.On("GetProfile", mock.Anything, "alice").Return(models.UserProfile{UID: "alice", DisplayName: "Alice"}, true, nil).Once()

	rec := serve(router, http.MethodGet, "/users/me", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uid":"alice","display_name":"Alice","photo_url":""}`, rec.Body.String())
	users.AssertExpectations(t)
}

func TestGetMeNotFound(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupUserRouter(NewUserHandler(users, nil, zap.NewNop()))
	users.On("GetProfile", mock.Anything, "alice").Return(models.UserProfile{}, false, nil).Once()

	rec := serve(router, http.MethodGet, "/users/me", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutMeUsesCallerIdentity(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupUserRouter(NewUserHandler(users, nil, zap.NewNop()))
	want := models.UserProfile{UID: "alice", DisplayName: "Alice", PhotoURL: "http://img/a.png"}
	users.On("UpsertProfile", mock.Anything, want).Return(want, nil).Once()

	rec := serve(router, http.MethodPut, "/users/me", `{"display_name":"Alice","photo_url":"http://img/a.png","uid":"mallory"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	users.AssertExpectations(t)
}

func TestPutMeRequiresDisplayName(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupUserRouter(NewUserHandler(users, nil, zap.NewNop()))

	rec := serve(router, http.MethodPut, "/users/me", `{"photo_url":"x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	users.AssertNotCalled(t, "UpsertProfile", mock.Anything, mock.Anything)
}

func TestPutMeStoreFailure(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupUserRouter(NewUserHandler(users, nil, zap.NewNop()))
	users.On("UpsertProfile", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	rec := serve(router, http.MethodPut, "/users/me", `{"display_name":"Alice"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
