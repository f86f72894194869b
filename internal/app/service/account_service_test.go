package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"todo_service/internal/common"
	"todo_service/internal/common/security"
	"todo_service/internal/domain/model"
	"todo_service/internal/domain/repository/repotest"
	"todo_service/internal/platform/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type accountFixture struct {
	users    *repotest.UserRepo
	codec    *security.TokenCodec
	metrics  *observability.Metrics
	accounts *AccountService
}

func newAccountFixture() *accountFixture {
	users := repotest.NewUserRepo()
	codec := security.NewTokenCodec([]byte("test-secret"))
	metrics := observability.NewMetrics()
	return &accountFixture{
		users:    users,
		codec:    codec,
		metrics:  metrics,
		accounts: NewAccountService(users, security.BcryptHasher{Cost: bcrypt.MinCost}, codec, time.Hour, quietLogger(), metrics),
	}
}

func (f *accountFixture) register(t *testing.T, first, email, password string) *model.User {
	t.Helper()
	u, err := f.accounts.Register(context.Background(), RegisterRequest{
		FirstName: first, LastName: "Tester", Email: email, Password: password,
	})
	require.NoError(t, err)
	return u
}

func TestRegister_FirstAccountIsAdmin(t *testing.T) {
	f := newAccountFixture()

	alice := f.register(t, "Alice", "alice@x", "pw-alice")
	bob := f.register(t, "Bob", "bob@x", "pw-bob")

	assert.Equal(t, []model.Role{model.RoleAdmin, model.RoleEmployee}, alice.Roles)
	assert.Equal(t, []model.Role{model.RoleEmployee}, bob.Roles)
	assert.NotEqual(t, "pw-alice", alice.HashedPassword)

	admins, err := f.users.CountAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, admins)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.AccountEventsTotal.WithLabelValues("registered")))
}

func TestRegister_ConcurrentFirstRegistrations(t *testing.T) {
	f := newAccountFixture()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.accounts.Register(context.Background(), RegisterRequest{
				FirstName: "User", LastName: fmt.Sprint(i), Email: fmt.Sprintf("u%d@x", i), Password: "pw",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	admins, err := f.users.CountAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, admins)

	users, err := f.users.List(context.Background())
	require.NoError(t, err)
	for _, u := range users {
		assert.NotEmpty(t, u.Roles)
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newAccountFixture()
	f.register(t, "Alice", "alice@x", "pw")

	tests := []struct {
		name string
		req  RegisterRequest
		msg  string
	}{
		{"missing first name", RegisterRequest{LastName: "L", Email: "a@b", Password: "pw"}, "first name, last name, email and password are required"},
		{"blank email", RegisterRequest{FirstName: "F", LastName: "L", Email: "   ", Password: "pw"}, "first name, last name, email and password are required"},
		{"malformed email", RegisterRequest{FirstName: "F", LastName: "L", Email: "nope", Password: "pw"}, "email is not valid"},
		{"taken email differs only in case", RegisterRequest{FirstName: "F", LastName: "L", Email: " ALICE@x ", Password: "pw"}, "email already in use"},
		{"first name too long", RegisterRequest{FirstName: strings.Repeat("a", 101), LastName: "L", Email: "a@b", Password: "pw"}, "first and last name must be at most 100 characters"},
		{"last name too long", RegisterRequest{FirstName: "F", LastName: strings.Repeat("é", 101), Email: "a@b", Password: "pw"}, "first and last name must be at most 100 characters"},
		{"email too long", RegisterRequest{FirstName: "F", LastName: "L", Email: strings.Repeat("a", 250) + "@b.com", Password: "pw"}, "email must be at most 255 characters"},
		{"password too long for bcrypt", RegisterRequest{FirstName: "F", LastName: "L", Email: "a@b", Password: strings.Repeat("p", 73)}, "password must be at most 72 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.accounts.Register(context.Background(), tt.req)
			assert.ErrorIs(t, err, common.ErrValidation)
			assert.Equal(t, tt.msg, common.MessageFromError(err))
		})
	}

	n, err := f.users.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLogin(t *testing.T) {
	f := newAccountFixture()
	f.register(t, "Alice", "alice@x", "pw-alice")

	resp, err := f.accounts.Login(context.Background(), LoginRequest{Email: "Alice@X", Password: "pw-alice"})
	require.NoError(t, err)
	subject, err := f.codec.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice@x", subject)

	_, err = f.accounts.Login(context.Background(), LoginRequest{Email: "alice@x", Password: "wrong"})
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = f.accounts.Login(context.Background(), LoginRequest{Email: "ghost@x", Password: "pw-alice"})
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues("failure")))
}

func TestProfile(t *testing.T) {
	f := newAccountFixture()
	alice := f.register(t, "Alice", "alice@x", "pw")

	profile, err := f.accounts.Profile(context.Background(), alice.Principal())
	require.NoError(t, err)
	assert.Equal(t, alice.ID, profile.ID)
	assert.Equal(t, "Alice Tester", profile.FullName)
	assert.Equal(t, []model.Role{model.RoleAdmin, model.RoleEmployee}, profile.Authorities)

	_, err = f.accounts.Profile(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestChangePassword_RejectsWithoutMutation(t *testing.T) {
	f := newAccountFixture()
	bob := f.register(t, "Bob", "bob@x", "old-pw")
	before := f.users.Get(bob.ID).HashedPassword

	tests := []struct {
		name string
		req  PasswordUpdateRequest
		msg  string
	}{
		{"wrong old password", PasswordUpdateRequest{OldPassword: "nope", NewPassword: "n1", NewPassword2: "n1"}, "current password is incorrect"},
		{"confirmation mismatch", PasswordUpdateRequest{OldPassword: "old-pw", NewPassword: "n1", NewPassword2: "n2"}, "new passwords do not match"},
		{"new equals old", PasswordUpdateRequest{OldPassword: "old-pw", NewPassword: "old-pw", NewPassword2: "old-pw"}, "old and new passwords must be different"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.accounts.ChangePassword(context.Background(), bob.Principal(), tt.req)
			assert.ErrorIs(t, err, common.ErrValidation)
			assert.Equal(t, tt.msg, common.MessageFromError(err))
			assert.Equal(t, before, f.users.Get(bob.ID).HashedPassword)
		})
	}
}

func TestRegister_AcceptsNamesAtColumnLimit(t *testing.T) {
	f := newAccountFixture()

	u, err := f.accounts.Register(context.Background(), RegisterRequest{
		FirstName: strings.Repeat("é", 100),
		LastName:  strings.Repeat("L", 100),
		Email:     "long@x",
		Password:  strings.Repeat("p", 72),
	})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 100), u.FirstName)
}

func TestChangePassword_NewPasswordTooLong(t *testing.T) {
	f := newAccountFixture()
	bob := f.register(t, "Bob", "bob@x", "old-pw")
	before := f.users.Get(bob.ID).HashedPassword
	long := strings.Repeat("n", 73)

	err := f.accounts.ChangePassword(context.Background(), bob.Principal(), PasswordUpdateRequest{
		OldPassword: "old-pw", NewPassword: long, NewPassword2: long,
	})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, "password must be at most 72 bytes", common.MessageFromError(err))
	assert.Equal(t, before, f.users.Get(bob.ID).HashedPassword)
}

func TestChangePassword_Success(t *testing.T) {
	f := newAccountFixture()
	bob := f.register(t, "Bob", "bob@x", "old-pw")

	err := f.accounts.ChangePassword(context.Background(), bob.Principal(), PasswordUpdateRequest{
		OldPassword: "old-pw", NewPassword: "new-pw", NewPassword2: "new-pw",
	})
	require.NoError(t, err)

	_, err = f.accounts.Login(context.Background(), LoginRequest{Email: "bob@x", Password: "old-pw"})
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	_, err = f.accounts.Login(context.Background(), LoginRequest{Email: "bob@x", Password: "new-pw"})
	assert.NoError(t, err)
	assert.False(t, f.users.Get(bob.ID).UpdatedAt.Before(bob.UpdatedAt))
}

func TestChangePassword_ConcurrentChangesFromSameOldPassword(t *testing.T) {
	f := newAccountFixture()
	bob := f.register(t, "Bob", "bob@x", "old-pw")

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pw := fmt.Sprintf("new-pw-%d", i)
			errs[i] = f.accounts.ChangePassword(context.Background(), bob.Principal(), PasswordUpdateRequest{
				OldPassword: "old-pw", NewPassword: pw, NewPassword2: pw,
			})
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			assert.Equal(t, -1, winner, "more than one change succeeded")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, common.ErrValidation)
		assert.Equal(t, "current password is incorrect", common.MessageFromError(err))
	}
	require.NotEqual(t, -1, winner)

	_, err := f.accounts.Login(context.Background(), LoginRequest{Email: "bob@x", Password: fmt.Sprintf("new-pw-%d", winner)})
	assert.NoError(t, err)
}

func TestDeleteSelf_LastAdmin(t *testing.T) {
	f := newAccountFixture()
	alice := f.register(t, "Alice", "alice@x", "pw")
	bob := f.register(t, "Bob", "bob@x", "pw")

	err := f.accounts.DeleteSelf(context.Background(), alice.Principal())
	assert.ErrorIs(t, err, common.ErrInvariant)
	assert.Equal(t, 403, common.HTTPStatusFromError(err))
	assert.NotNil(t, f.users.Get(alice.ID))

	// An employee may always leave.
	require.NoError(t, f.accounts.DeleteSelf(context.Background(), bob.Principal()))
	assert.Nil(t, f.users.Get(bob.ID))
}

func TestDeleteSelf_AdminWithAnotherAdmin(t *testing.T) {
	f := newAccountFixture()
	alice := f.register(t, "Alice", "alice@x", "pw")
	carol := f.register(t, "Carol", "carol@x", "pw")
	require.NoError(t, f.users.UpdateRoles(context.Background(), carol.ID, model.AdminRoles()))

	require.NoError(t, f.accounts.DeleteSelf(context.Background(), alice.Principal()))
	assert.Nil(t, f.users.Get(alice.ID))

	admins, err := f.users.CountAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, admins)
}
