package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/tobyv/vidrelay/internal/cache"
	"github.com/tobyv/vidrelay/internal/chat"
	"github.com/tobyv/vidrelay/internal/errs"
	"github.com/tobyv/vidrelay/internal/middleware"
	"github.com/tobyv/vidrelay/internal/relay"
	"github.com/tobyv/vidrelay/internal/store"
)

// Cache TTLs for the read-heavy list endpoints.
const (
	friendsTTL     = 10 * time.Minute
	recommendedTTL = 5 * time.Minute
	requestsTTL    = 2 * time.Minute
)

type UsersHandler struct {
	users    *store.UserRepository
	requests *store.FriendRequestRepository
	cache    *cache.Cache
	relay    chat.Relay
	log      *slog.Logger
}

func NewUsersHandler(users *store.UserRepository, requests *store.FriendRequestRepository, c *cache.Cache, r chat.Relay, log *slog.Logger) *UsersHandler {
	return &UsersHandler{users: users, requests: requests, cache: c, relay: r, log: log}
}

// Friends returns the user's friend list, cache-backed.
func (h *UsersHandler) Friends(c *gin.Context) {
	userID := middleware.Identity(c)
	cacheKey := "friends:" + userID

	var cached []store.User
	if h.cache.Get(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	user, err := h.users.GetByID(userID)
	if err != nil {
		h.log.Error("user lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	friends := make([]store.User, 0, len(user.Friends))
	for _, id := range user.Friends {
		friend, err := h.users.GetByID(id)
		if err != nil {
			h.log.Warn("dangling friend reference", "user", userID, "friend", id)
			continue
		}
		friends = append(friends, friend)
	}

	h.cache.Set(c.Request.Context(), cacheKey, friends, friendsTTL)
	c.JSON(http.StatusOK, friends)
}

// Recommended returns users who are neither the requester nor already
// friends, cache-backed.
func (h *UsersHandler) Recommended(c *gin.Context) {
	userID := middleware.Identity(c)
	cacheKey := "recommended:" + userID

	var cached []store.User
	if h.cache.Get(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	me, err := h.users.GetByID(userID)
	if err != nil {
		h.log.Error("user lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	all, err := h.users.List()
	if err != nil {
		h.log.Error("user list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	recommended := lo.Filter(all, func(u store.User, _ int) bool {
		return u.ID != userID && !me.IsFriend(u.ID)
	})

	h.cache.Set(c.Request.Context(), cacheKey, recommended, recommendedTTL)
	c.JSON(http.StatusOK, recommended)
}

// SendFriendRequest creates a pending request and notifies the recipient in
// real time if reachable.
func (h *UsersHandler) SendFriendRequest(c *gin.Context) {
	myID := middleware.Identity(c)
	recipientID := c.Param("id")

	if myID == recipientID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You can't send a friend request to yourself"})
		return
	}

	recipient, err := h.users.GetByID(recipientID)
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found"})
		return
	}
	if err != nil {
		h.log.Error("user lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if recipient.IsFriend(myID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You are already friends with this user"})
		return
	}

	fr, err := h.requests.Create(myID, recipientID)
	if errors.Is(err, errs.ErrUserExists) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A friend request already exists between you and this user"})
		return
	}
	if err != nil {
		h.log.Error("friend request create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Writes change both users' request lists.
	h.cache.Invalidate(c.Request.Context(),
		"outgoing-reqs:"+myID,
		"friend-reqs:"+recipientID,
	)

	h.relay.Send(recipientID, relay.EventFriendRequestCreated, relay.FriendRequestCreatedPayload{From: myID})

	c.JSON(http.StatusCreated, fr)
}

// AcceptFriendRequest links both users as friends. Only the recipient may
// accept.
func (h *UsersHandler) AcceptFriendRequest(c *gin.Context) {
	userID := middleware.Identity(c)
	requestID := c.Param("id")

	fr, err := h.requests.Get(requestID)
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Friend request not found"})
		return
	}
	if err != nil {
		h.log.Error("friend request lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if fr.Recipient != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not authorized to accept this request"})
		return
	}

	if err := h.requests.UpdateStatus(requestID, store.RequestAccepted); err != nil {
		h.log.Error("friend request update failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if err := h.users.LinkFriends(fr.Sender, fr.Recipient); err != nil {
		h.log.Error("friend link failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.cache.Invalidate(c.Request.Context(),
		"friends:"+fr.Sender,
		"friends:"+fr.Recipient,
		"friend-reqs:"+fr.Recipient,
		"outgoing-reqs:"+fr.Sender,
		"recommended:"+fr.Sender,
		"recommended:"+fr.Recipient,
	)

	c.JSON(http.StatusOK, gin.H{"message": "Friend request accepted"})
}

// FriendRequests returns incoming pending requests, cache-backed.
func (h *UsersHandler) FriendRequests(c *gin.Context) {
	userID := middleware.Identity(c)
	h.listRequests(c, "friend-reqs:"+userID, func() ([]store.FriendRequest, error) {
		return h.requests.ListIncoming(userID)
	})
}

// OutgoingRequests returns pending requests the user has sent, cache-backed.
func (h *UsersHandler) OutgoingRequests(c *gin.Context) {
	userID := middleware.Identity(c)
	h.listRequests(c, "outgoing-reqs:"+userID, func() ([]store.FriendRequest, error) {
		return h.requests.ListOutgoing(userID)
	})
}

func (h *UsersHandler) listRequests(c *gin.Context, cacheKey string, fetch func() ([]store.FriendRequest, error)) {
	var cached []store.FriendRequest
	if h.cache.Get(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	requests, err := fetch()
	if err != nil {
		h.log.Error("friend request list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if requests == nil {
		requests = []store.FriendRequest{}
	}

	h.cache.Set(c.Request.Context(), cacheKey, requests, requestsTTL)
	c.JSON(http.StatusOK, requests)
}
