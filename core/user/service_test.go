package user_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/user"
	testutil "github.com/trezcool/registrar/tests"
)

const goodPwd = "Ch4ng3-M3!"

func TestNewUser_Validate(t *testing.T) {
	app := testutil.NewApp(t)
	testutil.CreateUser(t, app.Repos.Users, "Taken", "taken", "taken@school.test", "", nil, true)

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
	}{
		{
			name:      "username or email",
			nu:        user.NewUser{Name: "X", Password: goodPwd, PasswordConfirm: goodPwd},
			wantField: "username",
		},
		{
			name:      "passwords must match",
			nu:        user.NewUser{Name: "X", Username: "xuser", Password: goodPwd, PasswordConfirm: "nope"},
			wantField: "passwordConfirm",
		},
		{
			name:      "password policy",
			nu:        user.NewUser{Name: "X", Username: "xuser", Password: "12345678", PasswordConfirm: "12345678"},
			wantField: "password",
		},
		{
			name:      "unknown role",
			nu:        user.NewUser{Name: "X", Username: "xuser", Password: goodPwd, PasswordConfirm: goodPwd, Roles: []string{"admin:janitor"}},
			wantField: "roles",
		},
		{
			name:      "username taken",
			nu:        user.NewUser{Name: "X", Username: " TAKEN ", Password: goodPwd, PasswordConfirm: goodPwd},
			wantField: "username",
		},
		{
			name:      "email taken",
			nu:        user.NewUser{Name: "X", Email: "Taken@School.test", Password: goodPwd, PasswordConfirm: goodPwd},
			wantField: "email",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.nu.Validate(app.Validate, app.Users)
			require.Error(t, err)
			assert.Contains(t, fieldNames(err), tc.wantField)
		})
	}

	nu := user.NewUser{Name: " Ada ", Username: " AdaL ", Password: goodPwd, PasswordConfirm: goodPwd}
	require.NoError(t, nu.Validate(app.Validate, app.Users))
	assert.Equal(t, "adal", nu.Username)
	assert.Equal(t, []string{user.RoleAdmin}, nu.Roles)
}

func TestService(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)

	usr, err := app.Users.Create(ctx, user.NewUser{Name: "Cashier", Username: "cashier", Password: goodPwd, Roles: []string{user.RoleAdminCashier}})
	require.NoError(t, err)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword(goodPwd))

	found, err := app.Users.GetByUsernameOrEmail(ctx, " CASHIER ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, found.ID)

	inactive := false
	usr, err = app.Users.Update(ctx, usr.ID, user.UpdateUser{Name: "Head Cashier", Username: "cashier", IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Head Cashier", usr.Name)

	admins, err := app.Users.ActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Empty(t, admins, "inactive users get no notifications")

	owner, err := app.Users.AddUser(ctx, "", "owner", "owner@school.test", goodPwd, true)
	require.NoError(t, err)
	assert.True(t, owner.IsOwner())
	assert.Equal(t, "owner", owner.Name)

	// adding again resets the password of the same user
	again, err := app.Users.AddUser(ctx, "The Owner", "owner", "", "N3w-Passw0rd!", false)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, again.ID)
	assert.Equal(t, "The Owner", again.Name)
	assert.NoError(t, again.CheckPassword("N3w-Passw0rd!"))

	require.NoError(t, app.Users.ResetPassword(ctx, "owner@school.test", goodPwd))
	owner, err = app.Users.GetByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.NoError(t, owner.CheckPassword(goodPwd))

	admins, err = app.Users.ActiveAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)

	require.NoError(t, app.Users.Delete(ctx, owner.ID))
	_, err = app.Users.GetByID(ctx, owner.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestCheckPassword(t *testing.T) {
	tests := []struct {
		pwd  string
		want string
	}{
		{pwd: "Sh0rt!", want: "password must contain at least 8 characters"},
		{pwd: "has space 1A!", want: "password must not contain whitespace"},
		{pwd: "1234567890", want: "password cannot be entirely numeric"},
		{pwd: "alllowercase1!", want: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"},
		{pwd: "Registrar1!", want: "password cannot be similar to user attributes"},
		{pwd: goodPwd, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.pwd, func(t *testing.T) {
			got := user.PasswordRuleText(user.CheckPassword(tc.pwd, "Registrar", "registrar", "registrar@school.test"))
			assert.Equal(t, tc.want, got)
		})
	}
}

func fieldNames(err error) []string {
	var names []string
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			names = append(names, fe.Field())
		}
		return names
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		for _, f := range ve.Fields {
			names = append(names, f.Field)
		}
	}
	return names
}
