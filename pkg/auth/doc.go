// Package auth handles user accounts and API authentication.
//
// Accounts live in the users table with bcrypt password hashes. API
// requests authenticate with a Bearer JWT (HS256) minted by the
// TokenManager; the user ID inside the token is what the storage layer
// later binds to the database session so row-level security applies.
//
// Token issue and validation:
//
//	tm := auth.NewTokenManager(secret, 24*time.Hour)
//	token, err := tm.Issue(user.ID, user.Email)
//	claims, err := tm.Validate(token)
//
// Account management goes through UserStore:
//
//	store := auth.NewUserStore(db)
//	user, err := store.Register(ctx, "shop@example.com", password, "Mama Njeri Shop")
//	user, err = store.Authenticate(ctx, "shop@example.com", password)
package auth
