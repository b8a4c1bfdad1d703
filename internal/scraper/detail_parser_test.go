package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailPageHTML = `
<html><body>
<div id="work_img"><img src="//img.dlsite.jp/modpub/images2/work/doujin/RJ406000/RJ405712_img_main_240x240.jpg"></div>
<table id="work_outline">
<tr><th>販売日</th><td>2024年3月15日</td></tr>
<tr><th>シリーズ名</th><td><a href="#">ねこみみシリーズ</a></td></tr>
<tr><th>年齢指定</th><td><span title="18禁">R-18</span></td></tr>
<tr><th>作品形式</th><td><span title="ボイス・ASMR">ボイス・ASMR</span></td></tr>
<tr><th>ファイル形式</th><td>MP3 / WAV</td></tr>
<tr><th>ジャンル</th><td><a href="#">癒し</a><a href="#">ささやき</a></td></tr>
<tr><th>声優</th><td><a href="#">小鳥遊すず</a><a href="#">花澤ことり</a></td></tr>
<tr><th>シナリオ</th><td>山田太郎/佐藤花子</td></tr>
<tr><th>イラスト</th><td><a href="#">ねこすけ</a></td></tr>
<tr><th>音楽</th><td>DJみけ</td></tr>
<tr><th>ファイル容量</th><td>1.2GB</td></tr>
<tr><th>再生時間</th><td>2時間30分15秒</td></tr>
<tr><th>特典</th><td>描き下ろし壁紙画像セット</td></tr>
</table>
<div class="work_parts">お屋敷に迷い込んだあなたを、ねこみみメイドが優しく案内します。今日だけの特別なおもてなしをどうぞお楽しみください。</div>
<div class="work_rating"><div class="star_rating star_491">★4.91</div><span class="rating_count">(867)</span></div>
<div class="tag_list"><a href="#">耳かき</a><a href="#">癒し</a></div>
</body></html>
`

func TestParseDetailHTML(t *testing.T) {
	d := ParseDetailHTML(detailPageHTML)

	assert.Equal(t, "2024年3月15日", d.ReleaseDate)
	assert.Equal(t, "ねこみみシリーズ", d.SeriesName)
	assert.Equal(t, "18禁", d.AgeRating)
	assert.Equal(t, "ボイス・ASMR", d.WorkFormat)
	assert.Equal(t, "MP3 / WAV", d.FileFormat)
	assert.Equal(t, []string{"癒し", "ささやき"}, d.Genres)

	assert.Equal(t, []string{"小鳥遊すず", "花澤ことり"}, d.VoiceActors)
	assert.Equal(t, []string{"山田太郎", "佐藤花子"}, d.Scenario)
	assert.Equal(t, []string{"ねこすけ"}, d.Illustration)
	assert.Equal(t, []string{"DJみけ"}, d.Music)
	assert.Empty(t, d.Author)

	require.NotNil(t, d.FileInfo)
	assert.Equal(t, "1.2GB", d.FileInfo.TotalSizeText)
	require.NotNil(t, d.FileInfo.TotalSizeBytes)
	assert.Equal(t, int64(1288490189), *d.FileInfo.TotalSizeBytes)
	require.NotNil(t, d.FileInfo.TotalDurationSec)
	assert.Equal(t, 2*3600+30*60+15, *d.FileInfo.TotalDurationSec)
	assert.Equal(t, []string{"MP3", "WAV"}, d.FileInfo.Formats)

	require.Len(t, d.BonusContent, 1)
	assert.Equal(t, "特典", d.BonusContent[0].Title)
	assert.Equal(t, "image", d.BonusContent[0].Type)

	assert.Contains(t, d.Description, "ねこみみメイド")

	assert.Equal(t, "https://img.dlsite.jp/modpub/images2/work/doujin/RJ406000/RJ405712_img_main.jpg", d.HighResImageURL)

	require.NotNil(t, d.DetailedStars)
	assert.InDelta(t, 4.91, *d.DetailedStars, 0.001)
	require.NotNil(t, d.DetailedRatingCount)
	assert.Equal(t, 867, *d.DetailedRatingCount)

	// genre labels never duplicate into the loose tag set
	assert.Equal(t, []string{"耳かき"}, d.DetailTags)
}

func TestParseDetailHTML_Empty(t *testing.T) {
	d := ParseDetailHTML("<html><body></body></html>")
	assert.Empty(t, d.ReleaseDate)
	assert.Empty(t, d.Description)
	assert.Nil(t, d.FileInfo)
	assert.Nil(t, d.DetailedStars)
}

func TestParseDetailedRating_DataAttribute(t *testing.T) {
	var d DetailPageData
	html := `<html><body><div class="star_rating" data-rating="4.62">★</div></body></html>`
	d = ParseDetailHTML(html)
	require.NotNil(t, d.DetailedStars)
	assert.InDelta(t, 4.62, *d.DetailedStars, 0.001)
}

func TestParseDetailedRating_SuffixCount(t *testing.T) {
	html := `<html><body>
<div class="work_rating"><div class="star_rating star_450">★</div></div>
<p>この作品には1,234件の評価があります。</p>
</body></html>`
	d := ParseDetailHTML(html)
	require.NotNil(t, d.DetailedStars)
	assert.InDelta(t, 4.5, *d.DetailedStars, 0.001)
	require.NotNil(t, d.DetailedRatingCount)
	assert.Equal(t, 1234, *d.DetailedRatingCount)
}

func TestExtractDescription_LongestParagraphFallback(t *testing.T) {
	html := `<html><body>
<p>短い。</p>
<p>深い森の奥でひっそりと暮らす魔女のもとに、ある日ひとりの旅人が迷い込んでくる。ふたりの奇妙な共同生活が始まった。</p>
</body></html>`
	d := ParseDetailHTML(html)
	assert.Contains(t, d.Description, "魔女のもとに")
}

func TestExtractDescription_StoryPatternFallback(t *testing.T) {
	html := `<html><body>
<span>あらすじ: 海辺の町に引っ越してきた少年が、不思議な貝殻を拾う。その夜から夢の中に人魚が現れるようになった。</span>
</body></html>`
	d := ParseDetailHTML(html)
	assert.Contains(t, d.Description, "不思議な貝殻")
}

func TestIsPlausibleDescription(t *testing.T) {
	assert.True(t, isPlausibleDescription("静かな夜にささやく声が聞こえる。"))

	// metadata fragments are rejected
	assert.False(t, isPlausibleDescription("1,320円の作品です。とてもお買い得な価格になっています。"))
	assert.False(t, isPlausibleDescription("120分の音声を収録。たっぷり聴ける大ボリュームです。"))
	assert.False(t, isPlausibleDescription("CV：小鳥遊すず。癒しの声をお届けします。"))
	assert.False(t, isPlausibleDescription("2024年3月に発売された作品。春の新作です。"))
	// too short, too long, no sentence punctuation
	assert.False(t, isPlausibleDescription("短い。"))
	assert.False(t, isPlausibleDescription("句読点のない長い文字列がただひたすら続いていくだけで文として成立していない"))
}

func TestParseFileSizeBytes(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"500B", 500},
		{"1.5KB", 1536},
		{"700MB", 700 << 20},
		{"1.2GB", 1288490189},
		{"2TB", 2 << 40},
	}
	for _, tc := range cases {
		got := parseFileSizeBytes(tc.in)
		require.NotNil(t, got, tc.in)
		assert.Equal(t, tc.want, *got, tc.in)
	}

	assert.Nil(t, parseFileSizeBytes("約700メガ"))
	assert.Nil(t, parseFileSizeBytes(""))
}

func TestParseDurationSeconds(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"2時間30分15秒", 9015},
		{"45分", 2700},
		{"1時間", 3600},
		{"90秒", 90},
	}
	for _, tc := range cases {
		got := parseDurationSeconds(tc.in)
		require.NotNil(t, got, tc.in)
		assert.Equal(t, tc.want, *got, tc.in)
	}

	assert.Nil(t, parseDurationSeconds("たっぷり収録"))
}

func TestStripThumbSuffix(t *testing.T) {
	assert.Equal(t,
		"https://img.dlsite.jp/x/RJ405712_img_main.jpg",
		stripThumbSuffix("https://img.dlsite.jp/x/RJ405712_img_main_240x240.jpg"))
	assert.Equal(t,
		"https://img.dlsite.jp/x/RJ405712_img_main.webp",
		stripThumbSuffix("https://img.dlsite.jp/x/RJ405712_img_main.webp"))
}

func TestBonusType(t *testing.T) {
	assert.Equal(t, "image", bonusType("描き下ろしイラスト"))
	assert.Equal(t, "audio", bonusType("ボーナスボイス"))
	assert.Equal(t, "text", bonusType("設定資料PDF"))
	assert.Equal(t, "video", bonusType("メイキング動画"))
	assert.Equal(t, "other", bonusType("アクリルキーホルダー"))
}
