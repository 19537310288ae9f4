package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"coinsub.com/internal/infra/persistence"
)

func writeAddressFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "addresses.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))
	return path
}

func newSeederFixture(t *testing.T, network string) (*AddressSeeder, *persistence.Repo) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	repo := persistence.New(db)
	require.NoError(t, repo.AutoMigrate())
	return NewAddressSeeder(repo, network), repo
}

func TestSeedFromFile(t *testing.T) {
	ctx := context.Background()

	t.Run("合法地址入池，注释和空行忽略", func(t *testing.T) {
		seeder, repo := newSeederFixture(t, "mainnet")
		path := writeAddressFile(t, `# 钱包批次 2026-08
1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa

bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq
3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy
`)

		added, err := seeder.SeedFromFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, int64(3), added)

		n, err := repo.CountAvailable(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("格式非法的行跳过不报错", func(t *testing.T) {
		seeder, repo := newSeederFixture(t, "mainnet")
		path := writeAddressFile(t, `1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa
definitely-not-an-address
bc1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq
`)

		added, err := seeder.SeedFromFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, int64(1), added)

		n, err := repo.CountAvailable(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("网络前缀不匹配的地址拒收", func(t *testing.T) {
		seeder, repo := newSeederFixture(t, "mainnet")
		// testnet 的 P2PKH 地址不能混进 mainnet 池
		path := writeAddressFile(t, "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn\n")

		added, err := seeder.SeedFromFile(ctx, path)
		require.NoError(t, err)
		assert.Zero(t, added)

		n, err := repo.CountAvailable(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("重复播种是幂等的", func(t *testing.T) {
		seeder, _ := newSeederFixture(t, "mainnet")
		path := writeAddressFile(t, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa\n")

		added, err := seeder.SeedFromFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, int64(1), added)

		added, err = seeder.SeedFromFile(ctx, path)
		require.NoError(t, err)
		assert.Zero(t, added)
	})

	t.Run("文件不存在报错", func(t *testing.T) {
		seeder, _ := newSeederFixture(t, "mainnet")
		_, err := seeder.SeedFromFile(ctx, "/no/such/file")
		assert.Error(t, err)
	})
}
