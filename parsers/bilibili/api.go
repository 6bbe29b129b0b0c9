package bilibili

import (
	"fmt"
	"sort"
	"strings"
)

// response is the envelope shared by every api.bilibili.com endpoint.
type response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (r *response[T]) Err() error {
	if r.Code != 0 {
		return fmt.Errorf("api error %d: %s", r.Code, r.Message)
	}
	return nil
}

type owner struct {
	Name string `json:"name"`
	Face string `json:"face"`
}

type videoPage struct {
	CID        int64  `json:"cid"`
	Page       int    `json:"page"`
	Part       string `json:"part"`
	Duration   int64  `json:"duration"`
	FirstFrame string `json:"first_frame"`
}

type videoInfo struct {
	BVID     string      `json:"bvid"`
	AID      int64       `json:"aid"`
	Title    string      `json:"title"`
	Desc     string      `json:"desc"`
	Pic      string      `json:"pic"`
	PubDate  int64       `json:"pubdate"`
	Duration int64       `json:"duration"`
	Owner    owner       `json:"owner"`
	Pages    []videoPage `json:"pages"`
	Stat     struct {
		View     int64 `json:"view"`
		Like     int64 `json:"like"`
		Coin     int64 `json:"coin"`
		Favorite int64 `json:"favorite"`
	} `json:"stat"`
}

// page returns the zero-based index and details of page number n, clamped to the pages that exist.
func (v *videoInfo) page(n int) (int, videoPage) {
	if len(v.Pages) == 0 {
		return 0, videoPage{Page: 1, Duration: v.Duration}
	}
	index := n - 1
	if index < 0 || index >= len(v.Pages) {
		index = 0
	}
	return index, v.Pages[index]
}

func (v *videoInfo) statInfo() string {
	return fmt.Sprintf("%s views, %s likes, %s coins, %s favorites",
		compactCount(v.Stat.View), compactCount(v.Stat.Like), compactCount(v.Stat.Coin), compactCount(v.Stat.Favorite))
}

func compactCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1e3)
	default:
		return fmt.Sprint(n)
	}
}

type dashStream struct {
	ID        int    `json:"id"`
	BaseURL   string `json:"baseUrl"`
	Codecs    string `json:"codecs"`
	Bandwidth int64  `json:"bandwidth"`
}

type playURL struct {
	Dash *struct {
		Video []dashStream `json:"video"`
		Audio []dashStream `json:"audio"`
	} `json:"dash"`
	Durl []struct {
		URL  string `json:"url"`
		Size int64  `json:"size"`
	} `json:"durl"`
}

// bestVideo picks the highest quality stream, preferring codec when any stream uses it.
func bestVideo(streams []dashStream, codec string) (dashStream, bool) {
	if len(streams) == 0 {
		return dashStream{}, false
	}
	candidates := streams
	if codec != "" {
		var preferred []dashStream
		for _, s := range streams {
			if strings.HasPrefix(s.Codecs, codec) {
				preferred = append(preferred, s)
			}
		}
		if len(preferred) > 0 {
			candidates = preferred
		}
	}
	return best(candidates), true
}

func bestAudio(streams []dashStream) (dashStream, bool) {
	if len(streams) == 0 {
		return dashStream{}, false
	}
	return best(streams), true
}

func best(streams []dashStream) dashStream {
	sorted := append([]dashStream(nil), streams...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ID != sorted[j].ID {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].Bandwidth > sorted[j].Bandwidth
	})
	return sorted[0]
}

type dynamicAuthor struct {
	Name  string `json:"name"`
	Face  string `json:"face"`
	PubTS int64  `json:"pub_ts"`
}

type dynamicItem struct {
	IDStr   string `json:"id_str"`
	Type    string `json:"type"`
	Modules struct {
		Author  dynamicAuthor `json:"module_author"`
		Dynamic struct {
			Desc *struct {
				Text string `json:"text"`
			} `json:"desc"`
			Major *struct {
				Type string `json:"type"`
				Draw *struct {
					Items []struct {
						Src string `json:"src"`
					} `json:"items"`
				} `json:"draw"`
				Archive *struct {
					BVID  string `json:"bvid"`
					Title string `json:"title"`
					Cover string `json:"cover"`
					Desc  string `json:"desc"`
				} `json:"archive"`
				Opus *struct {
					Title   string `json:"title"`
					Summary struct {
						Text string `json:"text"`
					} `json:"summary"`
					Pics []struct {
						URL string `json:"url"`
					} `json:"pics"`
				} `json:"opus"`
			} `json:"major"`
		} `json:"module_dynamic"`
	} `json:"modules"`
	Orig *dynamicItem `json:"orig"`
}

func (d *dynamicItem) title() string {
	if major := d.Modules.Dynamic.Major; major != nil {
		if major.Opus != nil && major.Opus.Title != "" {
			return major.Opus.Title
		}
		if major.Archive != nil {
			return major.Archive.Title
		}
	}
	return ""
}

func (d *dynamicItem) text() string {
	if desc := d.Modules.Dynamic.Desc; desc != nil && desc.Text != "" {
		return desc.Text
	}
	if major := d.Modules.Dynamic.Major; major != nil {
		if major.Opus != nil {
			return major.Opus.Summary.Text
		}
		if major.Archive != nil {
			return major.Archive.Desc
		}
	}
	return ""
}

func (d *dynamicItem) imageURLs() []string {
	var urls []string
	major := d.Modules.Dynamic.Major
	if major == nil {
		return nil
	}
	if major.Draw != nil {
		for _, item := range major.Draw.Items {
			urls = append(urls, item.Src)
		}
	}
	if major.Opus != nil {
		for _, pic := range major.Opus.Pics {
			urls = append(urls, pic.URL)
		}
	}
	if major.Archive != nil && major.Archive.Cover != "" {
		urls = append(urls, major.Archive.Cover)
	}
	return urls
}

type dynamicDetail struct {
	Item dynamicItem `json:"item"`
}

type roomInfo struct {
	RoomID      int64  `json:"room_id"`
	UID         int64  `json:"uid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	UserCover   string `json:"user_cover"`
	Keyframe    string `json:"keyframe"`
	LiveStatus  int    `json:"live_status"`
}

type masterInfo struct {
	Info struct {
		Uname string `json:"uname"`
		Face  string `json:"face"`
	} `json:"info"`
}

type opusParagraph struct {
	ParaType int `json:"para_type"`
	Text     *struct {
		Nodes []struct {
			Word *struct {
				Words string `json:"words"`
			} `json:"word"`
		} `json:"nodes"`
	} `json:"text"`
	Pic *struct {
		Pics []struct {
			URL string `json:"url"`
		} `json:"pics"`
	} `json:"pic"`
}

type opusModule struct {
	ModuleType string `json:"module_type"`
	Title      *struct {
		Text string `json:"text"`
	} `json:"module_title"`
	Author  *dynamicAuthor `json:"module_author"`
	Content *struct {
		Paragraphs []opusParagraph `json:"paragraphs"`
	} `json:"module_content"`
}

type opusDetail struct {
	Item struct {
		Modules []opusModule `json:"modules"`
	} `json:"item"`
}

type favList struct {
	Info struct {
		Title string `json:"title"`
		Ctime int64  `json:"ctime"`
		Upper owner  `json:"upper"`
	} `json:"info"`
	Medias []struct {
		Title string `json:"title"`
		Cover string `json:"cover"`
		Intro string `json:"intro"`
	} `json:"medias"`
}
