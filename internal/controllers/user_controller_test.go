package controllers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regcheck/backend/internal/middleware"
	"github.com/regcheck/backend/internal/models"
)

func userRouter(env *testEnv) *gin.Engine {
	uc := NewUserController(env.users)
	r := gin.New()
	users := r.Group("/users", middleware.AuthMiddleware(testSecret))
	users.GET("/me", uc.GetCurrentUser)
	users.PUT("/me", uc.UpdateCurrentUser)
	users.GET("", middleware.AdminOnly(), uc.GetUsers)
	return r
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	r := userRouter(env)
	u := env.createUser(t, "me@example.com", models.RoleAnalyst)
	auth := bearer(t, u)

	w := doJSON(r, http.MethodGet, "/users/me", auth, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "me@example.com", decode(t, w)["email"])

	w = doJSON(r, http.MethodPut, "/users/me", auth, gin.H{"firstName": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Renamed", body["firstName"])
	assert.Equal(t, "User", body["lastName"])
}

func TestUpdateCurrentUserEmailConflict(t *testing.T) {
	env := newTestEnv(t)
	r := userRouter(env)
	u := env.createUser(t, "me@example.com", models.RoleAnalyst)
	env.createUser(t, "other@example.com", models.RoleAnalyst)

	w := doJSON(r, http.MethodPut, "/users/me", bearer(t, u), gin.H{"email": "other@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetUsersIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	r := userRouter(env)
	admin := env.createUser(t, "admin@example.com", models.RoleAdmin)
	analyst := env.createUser(t, "analyst@example.com", models.RoleAnalyst)

	w := doJSON(r, http.MethodGet, "/users", bearer(t, analyst), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodGet, "/users?search=analyst", bearer(t, admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["users"], 1)
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total"])
}
